package session

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"elisa/internal/conversation"
)

type State int

const (
	Idle State = iota
	Recording
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Speaking:
		return "speaking"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Recorder interface {
	Record(ctx context.Context, progress func(left int)) (string, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, path string) string
}

type Responder interface {
	Respond(ctx context.Context, text string) string
}

type Speaker interface {
	Speak(ctx context.Context, text string) error
}

type Dispatcher interface {
	Dispatch(text string) bool
}

type Log interface {
	Append(m conversation.Message) error
	Clear()
}

// View is the presentation surface. It is only called from the control
// goroutine.
type View interface {
	SetState(s State)
	SetRecordEnabled(enabled bool)
	Status(text string)
	Message(m conversation.Message)
	Clear()
}

type Deps struct {
	Recorder    Recorder
	Transcriber Transcriber
	Responder   Responder
	Speaker     Speaker
	Dispatcher  Dispatcher
	Log         Log
	View        View
}

type Config struct {
	// Greeting is said when Run starts, if set.
	Greeting string
	// ShutdownWait bounds how long Run waits for workers on exit.
	ShutdownWait time.Duration
}

// Controller owns the session state. Every mutation happens on the
// goroutine running Run; the exported methods hand work over to it.
type Controller struct {
	cfg Config
	Deps

	events  chan func()
	stopped chan struct{}

	// owned by the control goroutine
	ctx      context.Context
	state    State
	capture  *Task
	generate *Task
	speak    *Task
	turns    []string
	queue    []string
}

func New(deps Deps, cfg Config) *Controller {
	if cfg.ShutdownWait <= 0 {
		cfg.ShutdownWait = 2 * time.Second
	}
	return &Controller{
		cfg:     cfg,
		Deps:    deps,
		events:  make(chan func(), 64),
		stopped: make(chan struct{}),
		ctx:     context.Background(),
	}
}

// Run processes requests and worker results until ctx is done, then
// cancels the workers and waits for them for a bounded time.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx = ctx
	c.View.SetState(Idle)
	c.View.SetRecordEnabled(true)

	if c.cfg.Greeting != "" {
		c.say(c.cfg.Greeting)
	}

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case fn := <-c.events:
			fn()
		}
	}
}

// RequestRecording starts a capture. It reports false and does nothing if
// a capture is outstanding or the assistant is not idle.
func (c *Controller) RequestRecording() bool {
	var ok bool
	c.call(func() {
		ok = c.startCapture("recording", c.listen)
	})
	return ok
}

// SubmitFile feeds an existing audio file through the capture slot as if
// it had just been recorded.
func (c *Controller) SubmitFile(path string) bool {
	var ok bool
	c.call(func() {
		ok = c.startCapture("file", func(ctx context.Context, _ func(int)) string {
			return c.Transcriber.Transcribe(ctx, path)
		})
	})
	return ok
}

// SubmitText starts a turn for typed text and returns once it is queued.
// Blank input is ignored.
func (c *Controller) SubmitText(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	return c.call(func() { c.turn(text) })
}

// Clear empties the in-memory conversation and the view.
func (c *Controller) Clear() {
	c.call(func() {
		c.Log.Clear()
		c.View.Clear()
	})
}

// Cancel asks the running workers to stop and drops queued turns and
// speech. A reply still being generated is discarded.
func (c *Controller) Cancel() {
	c.call(func() {
		c.turns = nil
		c.queue = nil
		for _, t := range []*Task{c.capture, c.generate, c.speak} {
			if t != nil {
				t.Cancel()
			}
		}
	})
}

func (c *Controller) State() State {
	var s State
	c.call(func() { s = c.state })
	return s
}

// Snapshot is a point-in-time view of the controller, for tests and
// diagnostics.
type Snapshot struct {
	State        State
	Capturing    bool
	Generating   bool
	Speaking     bool
	QueuedTurns  int
	QueuedSpeech int
}

func (s Snapshot) Idle() bool {
	return s.State == Idle && !s.Capturing && !s.Generating && !s.Speaking &&
		s.QueuedTurns == 0 && s.QueuedSpeech == 0
}

func (c *Controller) Snapshot() Snapshot {
	var snap Snapshot
	c.call(func() {
		snap = Snapshot{
			State:        c.state,
			Capturing:    c.capture != nil,
			Generating:   c.generate != nil,
			Speaking:     c.speak != nil,
			QueuedTurns:  len(c.turns),
			QueuedSpeech: len(c.queue),
		}
	})
	return snap
}

// call runs fn on the control goroutine and waits for it.
func (c *Controller) call(fn func()) bool {
	done := make(chan struct{})
	select {
	case c.events <- func() { fn(); close(done) }:
	case <-c.stopped:
		return false
	}

	select {
	case <-done:
		return true
	case <-c.stopped:
		return false
	}
}

// post hands a worker result to the control goroutine.
func (c *Controller) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.stopped:
	}
}

// tryPost is post for updates that may be dropped when the loop is busy.
func (c *Controller) tryPost(fn func()) {
	select {
	case c.events <- fn:
	default:
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	log.Debug("State change", "from", c.state, "to", s)
	c.state = s
	c.View.SetState(s)
}

func (c *Controller) startCapture(name string, job func(ctx context.Context, progress func(int)) string) bool {
	if c.capture != nil || c.state != Idle {
		log.Debug("Capture rejected", "state", c.state, "busy", c.capture != nil)
		return false
	}

	c.setState(Recording)
	c.View.SetRecordEnabled(false)

	progress := func(left int) {
		c.tryPost(func() {
			c.View.Status(fmt.Sprintf("Grabando... %ds", left))
		})
	}

	c.capture = spawn(c.ctx, name, func(ctx context.Context) {
		var text string
		defer func() {
			c.post(func() { c.onCaptureComplete(text) })
		}()
		text = job(ctx, progress)
	})
	return true
}

// listen records a clip and transcribes it. Failures yield "".
func (c *Controller) listen(ctx context.Context, progress func(int)) string {
	path, err := c.Recorder.Record(ctx, progress)
	if err != nil {
		log.Error("Recording failed", "err", err)
		return ""
	}
	return c.Transcriber.Transcribe(ctx, path)
}

func (c *Controller) onCaptureComplete(text string) {
	c.capture = nil
	c.setState(Idle)
	c.View.SetRecordEnabled(true)
	c.View.Status("")
	c.nextSpeech()

	text = strings.TrimSpace(text)
	if text == "" {
		log.Warn("Nothing transcribed")
		return
	}
	c.turn(text)
}

// turn starts an exchange for text, or queues it behind the one whose
// reply is still being generated.
func (c *Controller) turn(text string) {
	if c.generate != nil {
		c.turns = append(c.turns, text)
		return
	}
	c.startTurn(text)
}

// startTurn records the user message and asks for the reply on a worker,
// so the control loop stays responsive while the model runs.
func (c *Controller) startTurn(text string) {
	c.append(conversation.User, text)

	c.generate = spawn(c.ctx, "generating", func(ctx context.Context) {
		var reply string
		defer func() {
			cancelled := ctx.Err() != nil
			c.post(func() { c.onReply(text, reply, cancelled) })
		}()
		reply = c.Responder.Respond(ctx, text)
	})
}

// onReply finishes a turn. The reply is scheduled for playback before the
// command dispatch runs.
func (c *Controller) onReply(text, reply string, cancelled bool) {
	c.generate = nil

	if cancelled {
		log.Info("Reply discarded", "text", text)
	} else {
		if reply = strings.TrimSpace(reply); reply != "" {
			c.say(reply)
		}
		if c.Dispatcher.Dispatch(text) {
			log.Debug("Command handled", "text", text)
		}
	}

	if len(c.turns) > 0 {
		next := c.turns[0]
		c.turns = c.turns[1:]
		c.startTurn(next)
	}
}

func (c *Controller) say(text string) {
	c.append(conversation.Assistant, text)
	c.requestSpeaking(text)
}

func (c *Controller) append(s conversation.Speaker, text string) {
	m := conversation.NewMessage(s, text)
	if err := c.Log.Append(m); err != nil {
		log.Error("Failed to save conversation", "err", err)
	}
	c.View.Message(m)
}

// requestSpeaking plays text now or queues it behind the running capture
// or playback.
func (c *Controller) requestSpeaking(text string) {
	if c.speak != nil || c.capture != nil {
		c.queue = append(c.queue, text)
		return
	}
	c.startSpeaking(text)
}

func (c *Controller) startSpeaking(text string) {
	c.setState(Speaking)
	c.speak = spawn(c.ctx, "speaking", func(ctx context.Context) {
		defer c.post(c.onSpeakComplete)
		if err := c.Speaker.Speak(ctx, text); err != nil {
			log.Error("Playback failed", "err", err)
		}
	})
}

func (c *Controller) onSpeakComplete() {
	c.speak = nil
	if !c.nextSpeech() {
		c.setState(Idle)
	}
}

func (c *Controller) nextSpeech() bool {
	if c.speak != nil || c.capture != nil || len(c.queue) == 0 {
		return false
	}
	next := c.queue[0]
	c.queue = c.queue[1:]
	c.startSpeaking(next)
	return true
}

func (c *Controller) shutdown() {
	c.turns = nil
	c.queue = nil
	var tasks []*Task
	for _, t := range []*Task{c.capture, c.generate, c.speak} {
		if t != nil {
			t.Cancel()
			tasks = append(tasks, t)
		}
	}
	close(c.stopped)

	deadline := time.After(c.cfg.ShutdownWait)
	for _, t := range tasks {
		select {
		case <-t.Done():
		case <-deadline:
			log.Warn("Worker did not stop in time", "task", t.name)
			return
		}
	}
}
