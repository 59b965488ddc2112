package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Espeak shells out to espeak-ng and writes WAV. It works offline.
type Espeak struct {
	ExecPath string
	Voice    string
}

func NewEspeak(voice string) *Espeak {
	return &Espeak{ExecPath: "espeak-ng", Voice: voice}
}

func (e *Espeak) Ext() string { return ".wav" }

func (e *Espeak) Synthesize(ctx context.Context, text, path string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("nothing to synthesize")
	}

	cmd := exec.CommandContext(ctx, e.ExecPath, "-v", e.Voice, "-w", path, "--", text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("espeak: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
