package command

import (
	"errors"
	"fmt"
	log "log/slog"
	"net/url"
	"strings"
)

type Kind int

const (
	// Launch starts Program and ignores any text after the prefix.
	Launch Kind = iota
	// OpenURL opens the text after the prefix as a web address.
	OpenURL
	// Search opens Template with the escaped text after the prefix.
	Search
)

func (k Kind) String() string {
	switch k {
	case Launch:
		return "launch"
	case OpenURL:
		return "open_url"
	case Search:
		return "search"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Action struct {
	Kind     Kind
	Program  string
	Template string // Search only, %s is replaced by the query
}

type Entry struct {
	Prefix string
	Action Action
}

// Invocation is a resolved command ready to run.
type Invocation struct {
	Prefix string
	Kind   Kind
	Target string // program or url
}

// Runner performs the process level side effects.
type Runner interface {
	Start(program string) error
	OpenURL(u string) error
}

var errNoParam = errors.New("missing parameter")

// DefaultTable returns the command table for goos. Order matters: the
// first matching prefix wins.
func DefaultTable(goos string) []Entry {
	chrome, notepad, calc := "google-chrome", "gedit", "gnome-calculator"
	switch goos {
	case "windows":
		chrome, notepad, calc = "chrome.exe", "notepad.exe", "calc.exe"
	case "darwin":
		chrome, notepad, calc = "Google Chrome", "TextEdit", "Calculator"
	}

	return []Entry{
		{"abrir chrome", Action{Kind: Launch, Program: chrome}},
		{"abrir notepad", Action{Kind: Launch, Program: notepad}},
		{"abrir calculadora", Action{Kind: Launch, Program: calc}},
		{"ir a ", Action{Kind: OpenURL}},
		{"reproducir ", Action{Kind: Search, Template: "https://www.youtube.com/results?search_query=%s"}},
	}
}

type Dispatcher struct {
	table []Entry
	run   Runner
}

func NewDispatcher(table []Entry, run Runner) *Dispatcher {
	return &Dispatcher{table: table, run: run}
}

// Dispatch runs the first command whose prefix starts the lower-cased
// text. Failures are logged and the scan goes on with the next entry.
func (d *Dispatcher) Dispatch(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, e := range d.table {
		if !strings.HasPrefix(lower, e.Prefix) {
			continue
		}

		inv, err := resolve(e, strings.TrimSpace(lower[len(e.Prefix):]))
		if err == nil {
			err = d.execute(inv)
		}
		if err != nil {
			log.Error("Failed to run command", "cmd", e.Prefix, "err", err)
			continue
		}

		log.Info("Command executed", "cmd", inv.Prefix, "kind", inv.Kind, "target", inv.Target)
		return true
	}
	return false
}

func (d *Dispatcher) execute(inv Invocation) error {
	switch inv.Kind {
	case Launch:
		return d.run.Start(inv.Target)
	case OpenURL, Search:
		return d.run.OpenURL(inv.Target)
	}
	return fmt.Errorf("unknown command kind %v", inv.Kind)
}

func resolve(e Entry, param string) (Invocation, error) {
	inv := Invocation{Prefix: e.Prefix, Kind: e.Action.Kind}

	switch e.Action.Kind {
	case Launch:
		inv.Target = e.Action.Program
	case OpenURL:
		if param == "" {
			return inv, errNoParam
		}
		inv.Target = param
		if !strings.HasPrefix(param, "http") && !strings.HasPrefix(param, "www") {
			inv.Target = "https://" + param
		}
	case Search:
		if param == "" {
			return inv, errNoParam
		}
		inv.Target = fmt.Sprintf(e.Action.Template, url.QueryEscape(param))
	default:
		return inv, fmt.Errorf("unknown command kind %v", e.Action.Kind)
	}
	return inv, nil
}
