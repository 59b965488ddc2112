package command

import (
	"fmt"
	log "log/slog"
	"os/exec"
	"runtime"

	"github.com/pkg/browser"
)

// SystemRunner starts real processes and opens the default browser.
type SystemRunner struct{}

func (SystemRunner) Start(program string) error {
	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		cmd = exec.Command("open", "-a", program)
	} else {
		cmd = exec.Command(program)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", program, err)
	}

	// reap the child once it exits
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug("Program exited", "program", program, "err", err)
		}
	}()
	return nil
}

func (SystemRunner) OpenURL(u string) error {
	if err := browser.OpenURL(u); err != nil {
		return fmt.Errorf("open url %s: %w", u, err)
	}
	return nil
}
