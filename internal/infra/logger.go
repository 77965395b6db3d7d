package infra

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a JSON slog.Logger writing to stderr and a rotating
// log file. Sync runs are long and chatty, so rotation is not optional.
func NewLogger(cfg *Config) *slog.Logger {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		// Fall back to stderr only
		return slog.New(slog.NewJSONHandler(os.Stderr, nil)).
			With(slog.String("app", cfg.App.Name))
	}

	fileLogger := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "prismaview.log"),
		MaxSize:    10, // Megabytes
		MaxBackups: 3,
		MaxAge:     28, // Days
		Compress:   true,
	}

	// CLI output goes to stdout; logs go to stderr and the rotated file
	writer := io.MultiWriter(os.Stderr, fileLogger)

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Logging.Level),
	}

	return slog.New(slog.NewJSONHandler(writer, opts)).
		With(slog.String("app", cfg.App.Name), slog.String("version", cfg.App.Version))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
