package conversation

import (
	"strings"
	"time"
)

type Speaker int

const (
	User Speaker = iota
	Assistant
)

// UserLabel is how user messages are prefixed in the transcript.
const UserLabel = "Tú"

// TimeLayout is the timestamp layout of transcript lines.
const TimeLayout = "2006-01-02 15:04:05"

type Message struct {
	Speaker Speaker
	Text    string
	Time    time.Time
}

func NewMessage(s Speaker, text string) Message {
	return Message{Speaker: s, Text: text, Time: time.Now()}
}

// Line renders the message as one transcript line without the trailing
// newline. Line breaks inside the text are folded to spaces.
func (m Message) Line(assistantName string) string {
	label := UserLabel
	if m.Speaker == Assistant {
		label = assistantName
	}
	text := strings.Join(strings.Fields(m.Text), " ")
	return m.Time.Format(TimeLayout) + " - " + label + ": " + text
}
