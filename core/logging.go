package core

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
)

// SetupLogging configures log output to both stdout and a file in cfg.LogDir.
// Caller should close the returned io.Closer on shutdown.
func SetupLogging(cfg Config, filename string) (io.Closer, error) {
	f, err := openLogFile(cfg.LogDir, filename)
	if err != nil {
		return nil, err
	}

	mw := io.MultiWriter(os.Stdout, f)
	log.SetOutput(mw)
	gin.DefaultWriter = mw
	gin.DefaultErrorWriter = mw

	return f, nil
}

// NewAuditLogger opens the security audit sink: one JSON line per rejected
// request, appended to security.log. Concurrent writers are fine; the
// underlying file serializes appends.
func NewAuditLogger(cfg Config) (*slog.Logger, io.Closer, error) {
	f, err := openLogFile(cfg.LogDir, "security.log")
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewJSONHandler(f, nil))
	return logger, f, nil
}

func openLogFile(dir, filename string) (*os.File, error) {
	if dir == "" {
		dir = "/var/log/tabfer"
	}
	if filename == "" {
		filename = "app.log"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log dir %s: %w", dir, err)
	}

	path := filepath.Join(dir, filename)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}
