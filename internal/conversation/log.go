package conversation

import (
	"fmt"
	"os"
	"sync"
)

// Log keeps the messages of the session in order and mirrors each one to
// an append-only transcript file. The file is never read back or truncated.
type Log struct {
	mu        sync.Mutex
	path      string
	assistant string
	messages  []Message
}

func NewLog(path, assistantName string) *Log {
	return &Log{path: path, assistant: assistantName}
}

// Append adds m to the in-memory list and then to the transcript. The
// message stays in memory even if persisting fails.
func (l *Log) Append(m Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, m)
	return l.persist(m)
}

func (l *Log) persist(m Message) (err error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close transcript: %w", cerr)
		}
	}()

	if _, err := fmt.Fprintln(f, m.Line(l.assistant)); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}

// Clear empties the in-memory list. The transcript file is untouched.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
}

// Messages returns a copy of the current messages.
func (l *Log) Messages() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Message(nil), l.messages...)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}
