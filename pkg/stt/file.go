package stt

import (
	"context"
	log "log/slog"
	"os"
	"path/filepath"

	"elisa/pkg/audioconv"
)

// FileTranscriber transcribes audio files and never fails: every error is
// logged and turned into an empty string.
type FileTranscriber struct {
	engine  PCMTranscriber
	opts    Options
	cleaner *Cleaner
	decode  func(ctx context.Context, path string, opt audioconv.Options) ([]float32, error)
}

func NewFileTranscriber(engine PCMTranscriber, opts Options, cleaner *Cleaner) *FileTranscriber {
	if cleaner == nil {
		cleaner = NewCleaner(nil)
	}
	return &FileTranscriber{
		engine:  engine,
		opts:    opts,
		cleaner: cleaner,
		decode:  audioconv.DecodeFile,
	}
}

func (f *FileTranscriber) Transcribe(ctx context.Context, path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	if _, err := os.Stat(abs); err != nil {
		log.Error("Audio file not found", "path", abs, "err", err)
		return ""
	}

	pcm, err := f.decode(ctx, abs, audioconv.Options{})
	if err != nil {
		log.Error("Failed to decode audio", "path", abs, "err", err)
		return ""
	}

	res, err := f.engine.TranscribePCM(ctx, pcm, f.opts)
	if err != nil {
		log.Error("Failed to transcribe", "path", abs, "err", err)
		return ""
	}

	text := f.cleaner.Clean(res.Text)
	log.Info("Transcribed", "text", text, "lang", res.Language)
	return text
}
