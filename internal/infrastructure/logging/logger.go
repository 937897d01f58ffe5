package logging

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/serial-mqtt-bridge/internal/infrastructure/config"
)

const serviceName = "serialbridge"

// hexPreviewLimit caps how many payload bytes Hex renders.
const hexPreviewLimit = 64

// levels maps logging.level values onto slog levels. Anything else is info.
var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Logger is the bridge's structured logger. Every entry carries the
// service name and build version; components add component=<name>.
//
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of the configuration.
// Unknown formats fall back to JSON and unknown outputs to stdout.
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return build(w, cfg, version)
}

// Default is the logger used until the configuration has been read.
func Default() *Logger {
	return build(os.Stdout, config.LoggingConfig{Level: "info", Format: "json"}, "dev")
}

// Discard returns a logger that writes nothing.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

func build(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)}
}

func parseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// With returns a child logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags a child logger with the subsystem that owns it:
//
//	log.Component("mqtt").Warn("MQTT connection lost", "error", err)
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Hex renders serial payload bytes as hex in log output. Formatting is
// deferred until a handler actually emits the record, so passing Hex to a
// filtered-out Debug call costs nothing. Output is capped at 64 bytes.
type Hex []byte

// LogValue implements slog.LogValuer.
func (h Hex) LogValue() slog.Value {
	if len(h) <= hexPreviewLimit {
		return slog.StringValue(hex.EncodeToString(h))
	}
	return slog.StringValue(fmt.Sprintf("%s...(+%d bytes)",
		hex.EncodeToString(h[:hexPreviewLimit]), len(h)-hexPreviewLimit))
}
