package stt

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"elisa/pkg/audioconv"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	text  string
	err   error
	calls int
	opts  Options
}

func (f *fakeEngine) TranscribePCM(_ context.Context, _ []float32, opt Options) (Result, error) {
	f.calls++
	f.opts = opt
	return Result{Text: f.text, Language: opt.Language}, f.err
}

func newTestTranscriber(engine PCMTranscriber, decodeErr error) *FileTranscriber {
	ft := NewFileTranscriber(engine, Options{Language: "es", BeamSize: 5, Temperature: 0.2}, NewCleaner([]string{"gracias"}))
	ft.decode = func(context.Context, string, audioconv.Options) ([]float32, error) {
		if decodeErr != nil {
			return nil, decodeErr
		}
		return []float32{0, 0.1}, nil
	}
	return ft
}

func tempAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grabacion.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o644))
	return path
}

func TestFileTranscriberCleansText(t *testing.T) {
	engine := &fakeEngine{text: " me llamo Ana gracias "}
	ft := newTestTranscriber(engine, nil)

	require.Equal(t, "Me llamo Ana", ft.Transcribe(context.Background(), tempAudio(t)))
	require.Equal(t, "es", engine.opts.Language)
	require.Equal(t, 5, engine.opts.BeamSize)
}

func TestFileTranscriberMissingFile(t *testing.T) {
	engine := &fakeEngine{text: "hola"}
	ft := newTestTranscriber(engine, nil)

	require.Empty(t, ft.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav")))
	require.Zero(t, engine.calls)
}

func TestFileTranscriberFailures(t *testing.T) {
	path := tempAudio(t)

	ft := newTestTranscriber(&fakeEngine{text: "hola"}, errors.New("bad header"))
	require.Empty(t, ft.Transcribe(context.Background(), path))

	ft = newTestTranscriber(&fakeEngine{err: errors.New("inference failed")}, nil)
	require.Empty(t, ft.Transcribe(context.Background(), path))
}
