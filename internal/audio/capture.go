package audio

import (
	"context"
	"fmt"
	log "log/slog"
	"time"
)

// Cue plays a short sound before a recording starts.
type Cue interface {
	Ring(ctx context.Context) error
}

type CaptureConfig struct {
	Path       string
	Duration   time.Duration
	SampleRate int
	Channels   int
}

// Capture records a clip, cleans it up and stores it as a WAV file.
type Capture struct {
	cfg CaptureConfig
	src Source
	cue Cue
}

func NewCapture(src Source, cue Cue, cfg CaptureConfig) *Capture {
	if cfg.Duration <= 0 {
		cfg.Duration = 15 * time.Second
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Capture{cfg: cfg, src: src, cue: cue}
}

// Record captures one clip and returns the path of the written file.
// progress receives the seconds left once per second.
func (c *Capture) Record(ctx context.Context, progress func(left int)) (string, error) {
	if c.cue != nil {
		if err := c.cue.Ring(ctx); err != nil {
			log.Warn("Failed to play cue", "err", err)
		}
	}

	log.Info("Starting recording", "duration", c.cfg.Duration, "rate", c.cfg.SampleRate)

	raw, err := c.src.RecordFor(ctx, c.cfg.Duration, c.cfg.SampleRate, progress)
	if err != nil {
		return "", fmt.Errorf("record: %w", err)
	}

	rms := FrameRMS(raw)
	if rms == 0 {
		log.Warn("Recording is silent")
	}
	log.Debug("Recorded", "samples", len(raw), "rms", rms)

	pcm := Enhance(raw, c.cfg.Channels)

	if err := WriteWAV(c.cfg.Path, pcm, c.cfg.SampleRate); err != nil {
		return "", err
	}
	if err := VerifyFile(c.cfg.Path); err != nil {
		return "", err
	}

	log.Info("Audio file written", "path", c.cfg.Path)
	return c.cfg.Path, nil
}
