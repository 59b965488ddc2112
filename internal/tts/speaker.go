package tts

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Player plays an audio file to completion.
type Player interface {
	Play(ctx context.Context, path string) error
}

// Ducker lowers other applications while the assistant talks.
type Ducker interface {
	Duck(ctx context.Context, factor float64, fade time.Duration) error
	Unduck(ctx context.Context, fade time.Duration) error
}

type SpeakerConfig struct {
	Dir        string
	Grace      time.Duration
	DuckFactor float64
	Fade       time.Duration
}

// Speaker synthesizes text into a throwaway file, plays it and removes it.
type Speaker struct {
	cfg    SpeakerConfig
	synth  Synthesizer
	player Player
	ducker Ducker // optional
	sleep  func(time.Duration)
}

func NewSpeaker(synth Synthesizer, player Player, ducker Ducker, cfg SpeakerConfig) *Speaker {
	if cfg.DuckFactor <= 0 {
		cfg.DuckFactor = 0.3
	}
	if cfg.Fade <= 0 {
		cfg.Fade = 200 * time.Millisecond
	}
	return &Speaker{
		cfg:    cfg,
		synth:  synth,
		player: player,
		ducker: ducker,
		sleep:  time.Sleep,
	}
}

// Speak blocks until text has been played. The temporary file is removed
// on every path once it exists.
func (s *Speaker) Speak(ctx context.Context, text string) (err error) {
	if err := os.MkdirAll(s.cfg.Dir, 0o777); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}

	path := filepath.Join(s.cfg.Dir, "respuesta_"+uuid.NewString()+s.synth.Ext())
	defer func() {
		err = multierr.Combine(err, s.cleanup(path))
	}()

	if err := s.synth.Synthesize(ctx, text, path); err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audio not generated: %w", err)
	}

	if s.ducker != nil {
		if err := s.ducker.Duck(ctx, s.cfg.DuckFactor, s.cfg.Fade); err != nil {
			log.Warn("Failed to duck other streams", "err", err)
		}
		defer func() {
			// playback may have been cancelled, restore anyway
			if err := s.ducker.Unduck(context.Background(), s.cfg.Fade); err != nil {
				log.Warn("Failed to restore other streams", "err", err)
			}
		}()
	}

	log.Debug("Playing reply", "path", path)
	if err := s.player.Play(ctx, path); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

func (s *Speaker) cleanup(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	// let the decoder release the file first
	s.sleep(s.cfg.Grace)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove temp audio: %w", err)
	}
	return nil
}
