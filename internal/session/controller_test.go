package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"elisa/internal/conversation"
	"elisa/internal/llm"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// journal records calls from every fake in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeRecorder struct {
	release chan struct{}
	path    string
	err     error
}

func (f *fakeRecorder) Record(ctx context.Context, progress func(int)) (string, error) {
	progress(1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.path, f.err
}

type fakeTranscriber struct{ text string }

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) string {
	if path == "" {
		return ""
	}
	return f.text
}

type fakeResponder struct {
	j     *journal
	reply string
}

func (f *fakeResponder) Respond(ctx context.Context, text string) string {
	f.j.add("respond:" + text)
	return f.reply
}

type fakeSpeaker struct {
	j     *journal
	block chan struct{}
	err   error

	mu     sync.Mutex
	spoken []string
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.j.add("speak:" + text)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.spoken = append(f.spoken, text)
	f.mu.Unlock()
	return f.err
}

func (f *fakeSpeaker) done() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type fakeDispatcher struct{ j *journal }

func (f *fakeDispatcher) Dispatch(text string) bool {
	f.j.add("dispatch:" + text)
	return false
}

type nopView struct{}

func (nopView) SetState(State) {}
func (nopView) SetRecordEnabled(bool) {}
func (nopView) Status(string) {}
func (nopView) Message(conversation.Message) {}
func (nopView) Clear() {}

type harness struct {
	c       *Controller
	j       *journal
	rec     *fakeRecorder
	tr      *fakeTranscriber
	speaker *fakeSpeaker
	log     *conversation.Log
	cancel  context.CancelFunc
	done    chan struct{}
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()

	j := &journal{}
	h := &harness{
		j:       j,
		rec:     &fakeRecorder{path: "clip.wav"},
		tr:      &fakeTranscriber{text: "hola"},
		speaker: &fakeSpeaker{j: j},
		log:     conversation.NewLog(filepath.Join(t.TempDir(), "conversacion.txt"), "ELISA"),
		done:    make(chan struct{}),
	}
	h.c = New(Deps{
		Recorder:    h.rec,
		Transcriber: h.tr,
		Responder:   &fakeResponder{j: j, reply: "respuesta"},
		Speaker:     h.speaker,
		Dispatcher:  &fakeDispatcher{j: j},
		Log:         h.log,
		View:        nopView{},
	}, cfg)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		_ = h.c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return h.c.Snapshot().Idle() }, waitFor, tick)
}

func TestRecordTurn(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)

	require.True(t, h.c.RequestRecording())
	h.waitIdle(t)

	msgs := h.log.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, conversation.User, msgs[0].Speaker)
	require.Equal(t, "hola", msgs[0].Text)
	require.Equal(t, conversation.Assistant, msgs[1].Speaker)
	require.Equal(t, "respuesta", msgs[1].Text)

	entries := h.j.list()
	require.Contains(t, entries, "respond:hola")
	require.Contains(t, entries, "dispatch:hola")
	require.Equal(t, []string{"respuesta"}, h.speaker.done())
}

func TestRecordWhileRecordingIsRejected(t *testing.T) {
	h := newHarness(t, Config{})
	h.rec.release = make(chan struct{})
	h.start(t)

	require.True(t, h.c.RequestRecording())
	require.Equal(t, Recording, h.c.State())

	require.False(t, h.c.RequestRecording())
	require.False(t, h.c.SubmitFile("other.wav"))

	require.True(t, h.c.Snapshot().Capturing)

	close(h.rec.release)
	h.waitIdle(t)
	require.Equal(t, 2, h.log.Len())
}

func TestRecordWhileSpeakingIsRejected(t *testing.T) {
	h := newHarness(t, Config{})
	h.speaker.block = make(chan struct{})
	h.start(t)

	require.True(t, h.c.SubmitText("hola"))
	require.Eventually(t, func() bool { return h.c.State() == Speaking }, waitFor, tick)

	require.False(t, h.c.RequestRecording())

	close(h.speaker.block)
	h.waitIdle(t)
}

func TestEmptyTranscription(t *testing.T) {
	h := newHarness(t, Config{})
	h.tr.text = "   "
	h.start(t)

	require.True(t, h.c.RequestRecording())
	h.waitIdle(t)

	require.Zero(t, h.log.Len())
	require.Empty(t, h.j.list())
}

func TestRecordingFailureReturnsToIdle(t *testing.T) {
	h := newHarness(t, Config{})
	h.rec.path = ""
	h.rec.err = errors.New("no device")
	h.start(t)

	require.True(t, h.c.RequestRecording())
	h.waitIdle(t)
	require.Zero(t, h.log.Len())

	require.True(t, h.c.RequestRecording())
	h.waitIdle(t)
}

func TestSubmitText(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)

	require.False(t, h.c.SubmitText("  \n "))
	require.True(t, h.c.SubmitText("  ¿qué hora es? "))
	h.waitIdle(t)

	msgs := h.log.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "¿qué hora es?", msgs[0].Text)

	// the reply is scheduled before the command runs
	entries := h.j.list()
	require.Equal(t, "respond:¿qué hora es?", entries[0])
	require.Contains(t, entries, "dispatch:¿qué hora es?")
}

func TestSubmitFile(t *testing.T) {
	h := newHarness(t, Config{})
	h.tr.text = "desde archivo"
	h.start(t)

	require.True(t, h.c.SubmitFile("grabacion.ogg"))
	h.waitIdle(t)

	msgs := h.log.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "desde archivo", msgs[0].Text)
}

func TestSpeechIsSerialized(t *testing.T) {
	h := newHarness(t, Config{})
	h.speaker.block = make(chan struct{})
	h.start(t)

	require.True(t, h.c.SubmitText("uno"))
	require.True(t, h.c.SubmitText("dos"))

	require.Eventually(t, func() bool {
		snap := h.c.Snapshot()
		return snap.Speaking && snap.QueuedSpeech == 1 && !snap.Generating
	}, waitFor, tick)
	require.Equal(t, Speaking, h.c.State())

	close(h.speaker.block)
	h.waitIdle(t)
	require.Equal(t, []string{"respuesta", "respuesta"}, h.speaker.done())
	require.Equal(t, 4, h.log.Len())
}

func TestSpeechQueuedBehindCapture(t *testing.T) {
	h := newHarness(t, Config{})
	h.rec.release = make(chan struct{})
	h.start(t)

	require.True(t, h.c.RequestRecording())
	require.True(t, h.c.SubmitText("escrito"))

	require.Eventually(t, func() bool {
		snap := h.c.Snapshot()
		return snap.QueuedSpeech == 1 && !snap.Generating
	}, waitFor, tick)
	snap := h.c.Snapshot()
	require.False(t, snap.Speaking)
	require.Equal(t, Recording, snap.State)

	close(h.rec.release)
	h.waitIdle(t)
	require.Len(t, h.speaker.done(), 2)
}

func TestSpeakerFailureStillCompletes(t *testing.T) {
	h := newHarness(t, Config{})
	h.speaker.err = errors.New("no output")
	h.start(t)

	require.True(t, h.c.SubmitText("hola"))
	h.waitIdle(t)
	require.True(t, h.c.RequestRecording())
	h.waitIdle(t)
}

func TestCancelCapture(t *testing.T) {
	h := newHarness(t, Config{})
	h.rec.release = make(chan struct{})
	h.start(t)

	require.True(t, h.c.RequestRecording())
	h.c.Cancel()
	h.waitIdle(t)
	require.Zero(t, h.log.Len())
}

func TestCancelDropsQueuedSpeech(t *testing.T) {
	h := newHarness(t, Config{})
	h.speaker.block = make(chan struct{})
	h.start(t)

	require.True(t, h.c.SubmitText("uno"))
	require.True(t, h.c.SubmitText("dos"))
	h.c.Cancel()
	h.waitIdle(t)
	require.Empty(t, h.speaker.done())
}

func TestClear(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)

	require.True(t, h.c.SubmitText("hola"))
	h.waitIdle(t)
	require.Equal(t, 2, h.log.Len())

	h.c.Clear()
	require.Zero(t, h.log.Len())
}

func TestGreeting(t *testing.T) {
	h := newHarness(t, Config{Greeting: "¡Hola!"})
	h.start(t)

	h.waitIdle(t)
	msgs := h.log.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, conversation.Assistant, msgs[0].Speaker)
	require.Equal(t, []string{"¡Hola!"}, h.speaker.done())
}

// slowResponder holds every reply until released or cancelled.
type slowResponder struct {
	started chan string
	release chan struct{}
}

func (s *slowResponder) Respond(ctx context.Context, text string) string {
	s.started <- text
	select {
	case <-s.release:
		return "tarde"
	case <-ctx.Done():
		return "cancelado"
	}
}

func TestControlStaysResponsiveWhileGenerating(t *testing.T) {
	h := newHarness(t, Config{})
	slow := &slowResponder{started: make(chan string, 4), release: make(chan struct{})}
	h.c.Responder = slow
	h.start(t)

	begin := time.Now()
	require.True(t, h.c.SubmitText("hola"))
	require.Equal(t, "hola", <-slow.started)

	require.True(t, h.c.SubmitText("otra"))
	snap := h.c.Snapshot()
	require.True(t, snap.Generating)
	require.Equal(t, 1, snap.QueuedTurns)
	require.Equal(t, Idle, snap.State)

	h.c.Cancel()
	require.Less(t, time.Since(begin), time.Second)

	h.waitIdle(t)
	msgs := h.log.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "hola", msgs[0].Text)
	require.Empty(t, h.speaker.done())
	require.NotContains(t, h.j.list(), "dispatch:hola")
}

func TestQueuedTurnsKeepOrder(t *testing.T) {
	h := newHarness(t, Config{})
	slow := &slowResponder{started: make(chan string, 4), release: make(chan struct{})}
	h.c.Responder = slow
	h.start(t)

	require.True(t, h.c.SubmitText("uno"))
	require.True(t, h.c.SubmitText("dos"))
	require.Equal(t, "uno", <-slow.started)

	close(slow.release)
	require.Equal(t, "dos", <-slow.started)
	h.waitIdle(t)

	var texts []string
	for _, m := range h.log.Messages() {
		texts = append(texts, m.Text)
	}
	require.Equal(t, []string{"uno", "tarde", "dos", "tarde"}, texts)
}

type countingCompleter struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return "Claro", nil
}

func TestLearnsNameWithoutModel(t *testing.T) {
	h := newHarness(t, Config{})
	cc := &countingCompleter{}
	h.c.Responder = llm.NewResponder(cc, llm.ResponderConfig{})
	h.tr.text = "me llamo Ana"
	h.start(t)

	require.True(t, h.c.RequestRecording())
	h.waitIdle(t)

	msgs := h.log.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "¡Mucho gusto, Ana! ¿En qué puedo ayudarte hoy?", msgs[1].Text)
	require.Zero(t, cc.calls)
}

func TestCallsAfterShutdown(t *testing.T) {
	h := newHarness(t, Config{})
	h.start(t)

	h.cancel()
	<-h.done

	require.False(t, h.c.RequestRecording())
	require.False(t, h.c.SubmitText("hola"))
}
