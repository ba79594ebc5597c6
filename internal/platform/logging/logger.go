// Package logging provides structured logging built on log/slog.
//
// Three output formats are supported: "json" and "text" use the standard
// slog handlers, "pretty" renders through charmbracelet/log for local
// development. An optional rotating file sink always writes JSON.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace sits below debug and is used for per-command data access logs.
const LevelTrace = slog.Level(-8)

// Config holds logging configuration.
type Config struct {
	Level       string // trace, debug, info, warn, error
	Format      string // json, text, pretty
	Service     string
	Version     string
	Environment string
	AddSource   bool
	File        FileConfig

	// Extractors add request-scoped attributes to every record at write time.
	Extractors []ContextExtractor
}

// FileConfig configures the optional rotating log file.
type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New creates a configured logger writing to stdout.
func New(cfg *Config) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a configured logger writing to w, plus the rotating
// file when cfg.File is enabled. Sensitive attributes are redacted.
func NewWithWriter(cfg *Config, w io.Writer) *slog.Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: NewReplaceAttr(),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	case "pretty":
		handler = newPrettyHandler(w, level, cfg.AddSource)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	if cfg.File.Enabled && cfg.File.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		}
		handler = NewMultiHandler(handler, slog.NewJSONHandler(rotator, opts))
	}

	handler = NewContextHandler(handler, cfg.Extractors...)

	attrs := []any{
		slog.String("service_name", cfg.Service),
		slog.String("service_version", cfg.Version),
	}
	if cfg.Environment != "" {
		attrs = append(attrs, slog.String("env", cfg.Environment))
	}

	return slog.New(handler).With(attrs...)
}

func newPrettyHandler(w io.Writer, level slog.Level, reportCaller bool) slog.Handler {
	return log.NewWithOptions(w, log.Options{
		Level:           slogToCharmLevel(level),
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		ReportCaller:    reportCaller,
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// slogToCharmLevel maps slog levels onto the four levels charm renders.
// charm has no trace level, so trace collapses into debug.
func slogToCharmLevel(level slog.Level) log.Level {
	switch {
	case level <= slog.LevelDebug:
		return log.DebugLevel
	case level < slog.LevelWarn:
		return log.InfoLevel
	case level < slog.LevelError:
		return log.WarnLevel
	default:
		return log.ErrorLevel
	}
}

// SetDefault installs logger as the slog default, which also routes the
// standard library log package through it.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
