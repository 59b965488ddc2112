package config

import (
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
)

const probeName = "permiso_test.txt"

// Prepare creates the temp audio and assets directories with open
// permissions and probes that the temp directory is writable. Any error is
// fatal for the daemon.
func Prepare(cfg *Config) error {
	for _, d := range []string{cfg.TempDir, cfg.AssetsDir} {
		if err := os.MkdirAll(d, 0o777); err != nil {
			return fmt.Errorf("create dir %s: %w", d, err)
		}
		// MkdirAll is subject to umask
		if err := os.Chmod(d, 0o777); err != nil {
			return fmt.Errorf("chmod dir %s: %w", d, err)
		}
		log.Info("Directory ready", "dir", d)
	}

	probe := filepath.Join(cfg.TempDir, probeName)
	if err := os.WriteFile(probe, []byte("test"), 0o666); err != nil {
		return fmt.Errorf("temp dir %s not writable: %w", cfg.TempDir, err)
	}
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("remove probe: %w", err)
	}

	return nil
}
