package ui

import (
	log "log/slog"

	"elisa/internal/conversation"
	"elisa/internal/session"
)

// Console renders the session as log lines.
type Console struct {
	assistant string
	logger    *log.Logger
}

func NewConsole(assistantName string, logger *log.Logger) *Console {
	if logger == nil {
		logger = log.Default()
	}
	return &Console{assistant: assistantName, logger: logger.With("view", "console")}
}

func (c *Console) SetState(s session.State) {
	c.logger.Info("Estado", "state", s.String())
}

func (c *Console) SetRecordEnabled(enabled bool) {
	c.logger.Debug("Record trigger", "enabled", enabled)
}

func (c *Console) Status(text string) {
	if text == "" {
		return
	}
	c.logger.Info(text)
}

func (c *Console) Message(m conversation.Message) {
	c.logger.Info(m.Line(c.assistant))
}

func (c *Console) Clear() {
	c.logger.Info("Conversación borrada")
}

// Multi fans every call out to several views.
type Multi []session.View

func (m Multi) SetState(s session.State) {
	for _, v := range m {
		v.SetState(s)
	}
}

func (m Multi) SetRecordEnabled(enabled bool) {
	for _, v := range m {
		v.SetRecordEnabled(enabled)
	}
}

func (m Multi) Status(text string) {
	for _, v := range m {
		v.Status(text)
	}
}

func (m Multi) Message(msg conversation.Message) {
	for _, v := range m {
		v.Message(msg)
	}
}

func (m Multi) Clear() {
	for _, v := range m {
		v.Clear()
	}
}
