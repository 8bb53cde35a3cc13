package slogx

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// DefaultService names the process in every record when Config.Service is
// empty.
const DefaultService = "tabgate"

type Config struct {
	Service  string
	Version  string
	Env      string // "dev" adds source locations
	Level    string // debug, info, warn or error
	Format   string // json or text
	Instance string // defaults to the hostname

	// Output defaults to os.Stdout.
	Output io.Writer
}

// New builds the process logger, tags it with the service identity and
// installs it as the slog default.
func New(cfg Config) *slog.Logger {
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	if cfg.Instance == "" {
		cfg.Instance, _ = os.Hostname()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		AddSource: cfg.Env == "dev",
		Level:     parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	attrs := []any{
		slog.String("service", cfg.Service),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Env),
	}
	if cfg.Instance != "" {
		attrs = append(attrs, slog.String("instance", cfg.Instance))
	}
	logger := slog.New(handler).With(attrs...)

	slog.SetDefault(logger)
	return logger
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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
