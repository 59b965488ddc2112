package notify

import (
	"context"
	"errors"
	"io/fs"
	log "log/slog"
	"os"
	"time"
)

type Player interface {
	Play(ctx context.Context, path string) error
}

// Chime rings the trigger beep before a recording. A missing sound file
// is skipped.
type Chime struct {
	path    string
	player  Player
	timeout time.Duration
}

func NewChime(path string, player Player) *Chime {
	return &Chime{path: path, player: player, timeout: 2 * time.Second}
}

func (c *Chime) Ring(ctx context.Context) error {
	if _, err := os.Stat(c.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("No cue sound", "path", c.path)
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.player.Play(ctx, c.path)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}
