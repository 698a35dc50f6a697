package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ncecere/kereru_gateway/internal/config"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging installs the default slog logger. Format "text" selects the
// text handler; anything else logs JSON.
func ConfigureLogging(cfg config.LogConfig) *slog.Logger {
	return configureLogging(os.Stdout, cfg)
}

func configureLogging(w io.Writer, cfg config.LogConfig) *slog.Logger {
	logLevel.Set(ParseLevel(cfg.Level))
	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	logger := slog.New(handler).With(slog.String("service", "kereru-gateway"))
	slog.SetDefault(logger)
	return logger
}

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLogLevel changes the level of the logger installed by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}
