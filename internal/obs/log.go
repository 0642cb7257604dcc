package obs

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	loggerMu sync.RWMutex
	logger   zerolog.Logger
)

func init() {
	zerolog.TimestampFieldName = "ts"
	zerolog.MessageFieldName = "msg"
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger = newLogger(os.Stdout)
}

func newLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("service", "fundimart-api").Logger()
}

// Logger returns the shared structured logger used across the service.
func Logger() *zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	l := logger
	return &l
}

// SetOutput redirects the shared logger and returns a func restoring the previous one.
func SetOutput(w io.Writer) (restore func()) {
	loggerMu.Lock()
	prev := logger
	logger = newLogger(w).Level(prev.GetLevel())
	loggerMu.Unlock()
	return func() {
		loggerMu.Lock()
		logger = prev
		loggerMu.Unlock()
	}
}

// SetLevel applies a textual level such as "debug" or "warn".
func SetLevel(level string) error {
	level = strings.TrimSpace(strings.ToLower(level))
	if level == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	loggerMu.Lock()
	logger = logger.Level(lvl)
	loggerMu.Unlock()
	return nil
}
