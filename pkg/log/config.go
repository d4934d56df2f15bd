package log

import (
	"fmt"
	stdlog "log"
	"strings"
)

// Config declaratively describes how to build a Logger, the way a process
// would load it from its own Config struct.
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
	Output string // "console", "file:<path>", or "null"
}

// ParseLevel parses a level name case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// ApplyConfig builds a Logger from a Config. An unknown level still yields
// a usable Info-level logger alongside the parse error, and an unknown
// format falls back to JSON; a file output that cannot be opened returns
// the error and no logger.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		return NewLogger(), nil
	}

	lvl, lvlErr := ParseLevel(cfg.Level)

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "text":
		formatter = &TextFormatter{}
	case "json", "":
		formatter = &JSONFormatter{}
	default:
		formatter = &JSONFormatter{}
	}

	var output Output
	switch {
	case cfg.Output == "null":
		output = NullOutput{}
	case strings.HasPrefix(cfg.Output, "file:"):
		f, err := NewFileOutput(strings.TrimPrefix(cfg.Output, "file:"))
		if err != nil {
			return nil, err
		}
		output = f
	default:
		output = NewConsoleOutput()
	}

	logger := NewLogger(WithLevel(lvl), WithFormatter(formatter), WithOutput(output))
	if lvlErr != nil {
		return logger, lvlErr
	}
	return logger, nil
}

// stdLogWriter adapts a Logger to io.Writer so the standard library's log
// package can be redirected onto it.
type stdLogWriter struct {
	logger Logger
}

func (w stdLogWriter) Write(p []byte) (int, error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// ToStdLogger returns a *log.Logger whose output is routed through logger.
func ToStdLogger(logger Logger) *stdlog.Logger {
	return stdlog.New(stdLogWriter{logger: logger}, "", 0)
}

// RedirectStdLog points the standard library's global logger at logger, so
// third-party code still calling log.Printf ends up in the same pipeline.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdLogWriter{logger: logger})
}

var defaultLogger Logger

// GetDefaultLogger returns the process-wide fallback logger, lazily
// constructed with defaults, for call sites with no Logger to thread
// through (e.g. package-level init code).
func GetDefaultLogger() Logger {
	if defaultLogger == nil {
		defaultLogger = NewLogger()
	}
	return defaultLogger
}

// SetDefaultLogger overrides the process-wide fallback logger.
func SetDefaultLogger(l Logger) { defaultLogger = l }
