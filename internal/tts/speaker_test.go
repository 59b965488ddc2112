package tts

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSynth struct {
	write bool
	err   error
	path  string
}

func (f *fakeSynth) Ext() string { return ".mp3" }

func (f *fakeSynth) Synthesize(_ context.Context, text, path string) error {
	f.path = path
	if f.write {
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return err
		}
	}
	return f.err
}

type fakePlayer struct {
	err    error
	played []string
}

func (f *fakePlayer) Play(_ context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	f.played = append(f.played, path)
	return f.err
}

type fakeDucker struct{ ducked, restored int }

func (f *fakeDucker) Duck(context.Context, float64, time.Duration) error {
	f.ducked++
	return nil
}

func (f *fakeDucker) Unduck(context.Context, time.Duration) error {
	f.restored++
	return errors.New("pactl missing")
}

func newTestSpeaker(t *testing.T, synth *fakeSynth, player *fakePlayer, ducker Ducker) (*Speaker, *[]time.Duration) {
	t.Helper()
	s := NewSpeaker(synth, player, ducker, SpeakerConfig{Dir: t.TempDir(), Grace: 500 * time.Millisecond})
	var slept []time.Duration
	s.sleep = func(d time.Duration) { slept = append(slept, d) }
	return s, &slept
}

func TestSpeakPlaysAndRemoves(t *testing.T) {
	synth := &fakeSynth{write: true}
	player := &fakePlayer{}
	ducker := &fakeDucker{}
	s, slept := newTestSpeaker(t, synth, player, ducker)

	require.NoError(t, s.Speak(context.Background(), "hola"))

	require.Equal(t, []string{synth.path}, player.played)
	require.Regexp(t, `respuesta_[0-9a-f-]{36}\.mp3$`, synth.path)
	require.NoFileExists(t, synth.path)
	require.Equal(t, []time.Duration{500 * time.Millisecond}, *slept)
	require.Equal(t, 1, ducker.ducked)
	require.Equal(t, 1, ducker.restored)
}

func TestSpeakUniqueFiles(t *testing.T) {
	synth := &fakeSynth{write: true}
	s, _ := newTestSpeaker(t, synth, &fakePlayer{}, nil)

	require.NoError(t, s.Speak(context.Background(), "uno"))
	first := synth.path
	require.NoError(t, s.Speak(context.Background(), "dos"))
	require.NotEqual(t, first, synth.path)
}

func TestSpeakPlaybackFailureRemovesFile(t *testing.T) {
	synth := &fakeSynth{write: true}
	s, _ := newTestSpeaker(t, synth, &fakePlayer{err: errors.New("no device")}, nil)

	err := s.Speak(context.Background(), "hola")
	require.ErrorContains(t, err, "no device")
	require.NoFileExists(t, synth.path)
}

func TestSpeakSynthFailureAfterWrite(t *testing.T) {
	synth := &fakeSynth{write: true, err: errors.New("truncated")}
	player := &fakePlayer{}
	s, _ := newTestSpeaker(t, synth, player, nil)

	require.Error(t, s.Speak(context.Background(), "hola"))
	require.Empty(t, player.played)
	require.NoFileExists(t, synth.path)
}

func TestSpeakNothingCreated(t *testing.T) {
	synth := &fakeSynth{}
	s, slept := newTestSpeaker(t, synth, &fakePlayer{}, nil)

	require.ErrorContains(t, s.Speak(context.Background(), "hola"), "not generated")
	require.Empty(t, *slept)
}
