package bus

import (
	"context"
	"encoding/json"
	"fmt"
	log "log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"elisa/internal/conversation"
	"elisa/internal/session"
)

const (
	KindState         = "state"
	KindRecordEnabled = "record_enabled"
	KindStatus        = "status"
	KindMessage       = "message"
	KindClear         = "clear"

	KindRecord = "record"
	KindText   = "text"
	KindFile   = "file"
	KindCancel = "cancel"
)

// Message is the frame exchanged with the front end. Outgoing frames carry
// UI events, incoming ones carry commands.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
	Speaker string `json:"speaker,omitempty"`
	Time    string `json:"time,omitempty"`
}

// Commands is what the front end may ask of the session.
type Commands interface {
	RequestRecording() bool
	SubmitText(text string) bool
	SubmitFile(path string) bool
	Clear()
	Cancel()
}

type Config struct {
	URL           string
	AssistantName string
	// Reconnect is the delay between redials after the front end went
	// away. Zero makes a dropped connection final.
	Reconnect time.Duration
}

// Bridge publishes session events over a websocket and feeds the commands
// it receives back into the session. It implements session.View.
type Bridge struct {
	cfg Config

	mu   sync.Mutex
	conn *websocket.Conn

	out       chan Message
	done      chan struct{}
	closeOnce sync.Once
}

func Dial(ctx context.Context, cfg Config) (*Bridge, error) {
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("parse bus url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bus: %w", err)
	}

	log.Info("Connected to bus", "url", cfg.URL)
	b := &Bridge{
		cfg:  cfg,
		conn: conn,
		out:  make(chan Message, 128),
		done: make(chan struct{}),
	}
	go b.writeLoop()
	return b, nil
}

// Serve reads commands until ctx is done. A dropped connection is redialed
// when reconnecting is enabled, otherwise Serve returns the read error.
func (b *Bridge) Serve(ctx context.Context, cmds Commands) error {
	go func() {
		select {
		case <-ctx.Done():
			b.Close()
		case <-b.done:
		}
	}()

	for {
		m, err := b.read()
		if err == nil {
			if m != nil {
				b.handle(cmds, m)
			}
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		if b.cfg.Reconnect <= 0 {
			b.Close()
			return fmt.Errorf("read bus: %w", err)
		}

		log.Warn("Trying to reconnect on", "url", b.cfg.URL, "err", err, "closed", isClosed(err))
		if err := b.redial(ctx); err != nil {
			return nil
		}
		log.Info("Successfully reconnected")
	}
}

func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.current().Close()
	})
	return err
}

func (b *Bridge) current() *websocket.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn
}

func (b *Bridge) redial(ctx context.Context) error {
	_ = b.current().Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return net.ErrClosed
		case <-time.After(b.cfg.Reconnect):
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.cfg.URL, nil)
		if err != nil {
			log.Debug("Redial failed", "err", err)
			continue
		}

		b.mu.Lock()
		b.conn = conn
		b.mu.Unlock()

		select {
		case <-b.done:
			conn.Close()
			return net.ErrClosed
		default:
			return nil
		}
	}
}

func isClosed(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure)
}

func (b *Bridge) handle(cmds Commands, m *Message) {
	log.Debug("Bus command", "kind", m.Kind, "from", m.From)

	switch m.Kind {
	case KindRecord:
		if !cmds.RequestRecording() {
			b.Status("Ocupado")
		}
	case KindText:
		cmds.SubmitText(m.Content)
	case KindFile:
		if !cmds.SubmitFile(m.Content) {
			b.Status("Ocupado")
		}
	case KindClear:
		cmds.Clear()
	case KindCancel:
		cmds.Cancel()
	default:
		log.Warn("Unknown bus command", "kind", m.Kind)
	}
}

// read returns the next command frame. Only transport failures are
// errors; a frame that does not decode is logged and yields nil.
func (b *Bridge) read() (*Message, error) {
	_, data, err := b.current().ReadMessage()
	if err != nil {
		return nil, err
	}

	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn("Bad bus frame", "frame", string(data), "err", err)
		return nil, nil
	}
	return &m, nil
}

func (b *Bridge) writeLoop() {
	for {
		select {
		case <-b.done:
			return
		case m := <-b.out:
			data, err := json.Marshal(m)
			if err != nil {
				log.Error("Failed to encode bus frame", "err", err)
				continue
			}
			if err := b.current().WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn("Bus write failed, frame dropped", "kind", m.Kind, "err", err)
			}
		}
	}
}

// publish never blocks the caller; frames are dropped when the front end
// falls behind.
func (b *Bridge) publish(kind, content string) {
	b.send(Message{From: "elisa", To: "ui", Kind: kind, Content: content})
}

func (b *Bridge) send(m Message) {
	select {
	case <-b.done:
	case b.out <- m:
	default:
		log.Warn("Bus queue full, dropping frame", "kind", m.Kind)
	}
}

func (b *Bridge) SetState(s session.State) { b.publish(KindState, s.String()) }

func (b *Bridge) SetRecordEnabled(enabled bool) {
	b.publish(KindRecordEnabled, fmt.Sprint(enabled))
}

func (b *Bridge) Status(text string) { b.publish(KindStatus, text) }

func (b *Bridge) Message(m conversation.Message) {
	speaker := conversation.UserLabel
	if m.Speaker == conversation.Assistant {
		speaker = b.cfg.AssistantName
	}
	b.send(Message{
		From:    "elisa",
		To:      "ui",
		Kind:    KindMessage,
		Content: m.Text,
		Speaker: speaker,
		Time:    m.Time.Format(conversation.TimeLayout),
	})
}

func (b *Bridge) Clear() { b.publish(KindClear, "") }
