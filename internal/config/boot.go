package config

import (
	"io"
	log "log/slog"

	"elisa/internal/logging"
)

// Boot loads the configuration, installs logging and then prepares the
// working directories, so a directory failure lands in the log file. On a
// preparation error the log file is still returned for the caller to close.
func Boot(args []string, console io.Writer) (*Config, io.Closer, error) {
	cfg, err := Load(args)
	if err != nil {
		return nil, nil, err
	}

	logFile, err := logging.Setup(console, cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	if err := Prepare(cfg); err != nil {
		log.Error("Failed to prepare directories", "dir", cfg.Dir, "err", err)
		return nil, logFile, err
	}
	return cfg, logFile, nil
}
