package bus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"elisa/internal/conversation"
	"elisa/internal/session"
)

type fakeCommands struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeCommands) add(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeCommands) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeCommands) RequestRecording() bool { f.add("record"); return false }
func (f *fakeCommands) SubmitText(t string) bool { f.add("text:" + t); return true }
func (f *fakeCommands) SubmitFile(p string) bool { f.add("file:" + p); return true }
func (f *fakeCommands) Clear() { f.add("clear") }
func (f *fakeCommands) Cancel() { f.add("cancel") }

// frontEnd is a websocket server standing in for the UI.
func frontEnd(t *testing.T) (string, <-chan *websocket.Conn) {
	t.Helper()
	conns := make(chan *websocket.Conn, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- c
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), conns
}

func TestBridgePublishes(t *testing.T) {
	url, conns := frontEnd(t)

	b, err := Dial(context.Background(), Config{URL: url, AssistantName: "ELISA"})
	require.NoError(t, err)
	defer b.Close()
	ui := <-conns
	defer ui.Close()

	b.SetState(session.Recording)
	b.Message(conversation.NewMessage(conversation.Assistant, "hola"))
	b.Message(conversation.NewMessage(conversation.User, "buenas"))
	b.Clear()

	require.NoError(t, ui.SetReadDeadline(time.Now().Add(2*time.Second)))

	var m Message
	require.NoError(t, ui.ReadJSON(&m))
	require.Equal(t, KindState, m.Kind)
	require.Equal(t, "recording", m.Content)

	require.NoError(t, ui.ReadJSON(&m))
	require.Equal(t, KindMessage, m.Kind)
	require.Equal(t, "ELISA", m.Speaker)
	require.Equal(t, "hola", m.Content)
	require.NotEmpty(t, m.Time)

	require.NoError(t, ui.ReadJSON(&m))
	require.Equal(t, conversation.UserLabel, m.Speaker)

	m = Message{}
	require.NoError(t, ui.ReadJSON(&m))
	require.Equal(t, KindClear, m.Kind)
}

func TestBridgeServesCommands(t *testing.T) {
	url, conns := frontEnd(t)

	b, err := Dial(context.Background(), Config{URL: url, AssistantName: "ELISA"})
	require.NoError(t, err)
	ui := <-conns
	defer ui.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cmds := &fakeCommands{}
	served := make(chan error, 1)
	go func() { served <- b.Serve(ctx, cmds) }()

	require.NoError(t, ui.WriteMessage(websocket.TextMessage, []byte("not json")))
	for _, m := range []Message{
		{From: "ui", Kind: KindText, Content: "hola"},
		{From: "ui", Kind: KindRecord},
		{From: "ui", Kind: KindClear},
		{From: "ui", Kind: KindCancel},
		{From: "ui", Kind: "dance"},
	} {
		require.NoError(t, ui.WriteJSON(m))
	}

	require.Eventually(t, func() bool { return len(cmds.list()) == 4 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"text:hola", "record", "clear", "cancel"}, cmds.list())

	// a rejected record request is reported back
	require.NoError(t, ui.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m Message
	require.NoError(t, ui.ReadJSON(&m))
	require.Equal(t, KindStatus, m.Kind)

	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestBridgeReconnects(t *testing.T) {
	url, conns := frontEnd(t)

	b, err := Dial(context.Background(), Config{URL: url, AssistantName: "ELISA", Reconnect: 10 * time.Millisecond})
	require.NoError(t, err)
	first := <-conns

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmds := &fakeCommands{}
	go b.Serve(ctx, cmds)

	require.NoError(t, first.Close())

	var second *websocket.Conn
	select {
	case second = <-conns:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not reconnect")
	}
	defer second.Close()

	require.NoError(t, second.WriteJSON(Message{From: "ui", Kind: KindClear}))
	require.Eventually(t, func() bool { return len(cmds.list()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestBridgeSkipsUndecodableFrames(t *testing.T) {
	url, conns := frontEnd(t)

	b, err := Dial(context.Background(), Config{URL: url, AssistantName: "ELISA"})
	require.NoError(t, err)
	ui := <-conns
	defer ui.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cmds := &fakeCommands{}
	served := make(chan error, 1)
	go func() { served <- b.Serve(ctx, cmds) }()

	for _, frame := range []string{`{"kind": 5}`, `{"content": ["x"]}`, `[]`, `{"from":"ui","kind":"clear"}`} {
		require.NoError(t, ui.WriteMessage(websocket.TextMessage, []byte(frame)))
	}

	require.Eventually(t, func() bool { return len(cmds.list()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, []string{"clear"}, cmds.list())

	select {
	case err := <-served:
		t.Fatalf("Serve returned early: %v", err)
	default:
	}

	cancel()
	require.NoError(t, <-served)
}
