package command

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	startErr error
	started  []string
	opened   []string
}

func (f *fakeRunner) Start(program string) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, program)
	return nil
}

func (f *fakeRunner) OpenURL(u string) error {
	f.opened = append(f.opened, u)
	return nil
}

func TestDispatchLaunch(t *testing.T) {
	r := &fakeRunner{}
	d := NewDispatcher(DefaultTable("windows"), r)

	require.True(t, d.Dispatch("abrir notepad"))
	require.Equal(t, []string{"notepad.exe"}, r.started)

	require.True(t, d.Dispatch("Abrir Calculadora por favor"))
	require.Equal(t, "calc.exe", r.started[1])
}

func TestDispatchNotHandled(t *testing.T) {
	r := &fakeRunner{}
	d := NewDispatcher(DefaultTable("windows"), r)

	require.False(t, d.Dispatch("hola"))
	require.False(t, d.Dispatch("quiero abrir notepad"))
	require.False(t, d.Dispatch(""))
	require.Empty(t, r.started)
	require.Empty(t, r.opened)
}

func TestDispatchURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ir a example.com", "https://example.com"},
		{"Ir a www.example.com", "www.example.com"},
		{"ir a http://example.com/x", "http://example.com/x"},
		{"reproducir la bamba", "https://www.youtube.com/results?search_query=la+bamba"},
	}
	for _, tt := range tests {
		r := &fakeRunner{}
		d := NewDispatcher(DefaultTable("linux"), r)
		require.True(t, d.Dispatch(tt.in), tt.in)
		require.Equal(t, []string{tt.want}, r.opened, tt.in)
	}
}

func TestDispatchMissingParam(t *testing.T) {
	r := &fakeRunner{}
	d := NewDispatcher(DefaultTable("linux"), r)

	require.False(t, d.Dispatch("ir a    "))
	require.Empty(t, r.opened)
}

func TestDispatchFirstMatchWins(t *testing.T) {
	r := &fakeRunner{}
	d := NewDispatcher([]Entry{
		{"abrir", Action{Kind: Launch, Program: "first"}},
		{"abrir notepad", Action{Kind: Launch, Program: "second"}},
	}, r)

	require.True(t, d.Dispatch("abrir notepad"))
	require.Equal(t, []string{"first"}, r.started)
}

func TestDispatchFailureFallsThrough(t *testing.T) {
	r := &fakeRunner{startErr: errors.New("executable not found")}
	d := NewDispatcher(DefaultTable("windows"), r)

	require.False(t, d.Dispatch("abrir chrome"))
}
