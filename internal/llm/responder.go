package llm

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Apology is returned whenever the model cannot produce a reply.
const Apology = "Lo siento, no pude procesar tu solicitud."

// namePatterns introduce the user's name, checked in this order.
var namePatterns = []string{"me llamo", "mi nombre es", "soy"}

// Identity holds the user's name. It can be set only once.
type Identity struct {
	mu   sync.Mutex
	name string
}

func (i *Identity) Name() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.name
}

// Set stores name unless a name is already known.
func (i *Identity) Set(name string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.name != "" || name == "" {
		return false
	}
	i.name = name
	return true
}

type ResponderConfig struct {
	AssistantName string
	MaxTokens     int
	Timeout       time.Duration
}

// Responder produces the assistant's reply for a user utterance.
type Responder struct {
	cfg       ResponderConfig
	completer Completer
	identity  *Identity
	title     cases.Caser
}

func NewResponder(c Completer, cfg ResponderConfig) *Responder {
	if cfg.AssistantName == "" {
		cfg.AssistantName = "ELISA"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 50
	}
	return &Responder{
		cfg:       cfg,
		completer: c,
		identity:  &Identity{},
		title:     cases.Title(language.Spanish),
	}
}

func (r *Responder) Identity() *Identity { return r.identity }

// Respond never fails: model errors are logged and answered with Apology.
func (r *Responder) Respond(ctx context.Context, text string) string {
	if greeting, ok := r.LearnName(text); ok {
		return greeting
	}

	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	out, err := r.completer.Complete(ctx, r.Prompt(text), r.cfg.MaxTokens)
	if err != nil {
		log.Error("Failed to generate reply", "err", err)
		return Apology
	}
	return strings.TrimSpace(out)
}

// LearnName looks for a self introduction while the user's name is still
// unknown. On a match it stores the name and returns a greeting.
func (r *Responder) LearnName(text string) (string, bool) {
	if r.identity.Name() != "" {
		return "", false
	}

	lower := strings.ToLower(text)
	for _, p := range namePatterns {
		idx := strings.LastIndex(lower, p)
		if idx < 0 {
			continue
		}

		name := strings.TrimSpace(lower[idx+len(p):])
		name = strings.Trim(name, ".,;:!¡?¿ ")
		name = r.title.String(name)
		if utf8.RuneCountInString(name) <= 1 || !r.identity.Set(name) {
			return "", false
		}

		log.Info("Learned user name", "name", name)
		return fmt.Sprintf("¡Mucho gusto, %s! ¿En qué puedo ayudarte hoy?", name), true
	}
	return "", false
}

// Prompt builds the model prompt for text.
func (r *Responder) Prompt(text string) string {
	speaker := "Usuario:"
	if name := r.identity.Name(); name != "" {
		speaker = fmt.Sprintf("El usuario %s te dice:", name)
	}
	return fmt.Sprintf(
		"Eres %s, un asistente virtual en español. %s %s\nResponde de manera clara y concisa en español (máximo 50 palabras):",
		r.cfg.AssistantName, speaker, text,
	)
}
