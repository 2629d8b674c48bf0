package transport

import (
	"context"
	"io"
	"log"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// slogHCLogger adapts slog.Logger to hashicorp/go-hclog.Logger so the
// retrying client logs through the application logger.
type slogHCLogger struct {
	logger *slog.Logger
	name   string
	args   []any
}

func newHCLogger(logger *slog.Logger) hclog.Logger {
	return &slogHCLogger{logger: logger, name: "transport"}
}

func (l *slogHCLogger) Log(level hclog.Level, msg string, args ...any) {
	switch level {
	case hclog.Trace, hclog.Debug:
		l.logger.Debug(msg, args...)
	case hclog.Warn:
		l.logger.Warn(msg, args...)
	case hclog.Error:
		l.logger.Error(msg, args...)
	default:
		l.logger.Info(msg, args...)
	}
}

// Retry chatter stays at debug; the client reports final failures itself.
func (l *slogHCLogger) Trace(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *slogHCLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *slogHCLogger) Info(msg string, args ...any)  { l.logger.Debug(msg, args...) }
func (l *slogHCLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogHCLogger) Error(msg string, args ...any) { l.logger.Warn(msg, args...) }

func (l *slogHCLogger) IsTrace() bool { return false }
func (l *slogHCLogger) IsDebug() bool { return l.logger.Enabled(context.Background(), slog.LevelDebug) }
func (l *slogHCLogger) IsInfo() bool  { return l.logger.Enabled(context.Background(), slog.LevelInfo) }
func (l *slogHCLogger) IsWarn() bool  { return l.logger.Enabled(context.Background(), slog.LevelWarn) }
func (l *slogHCLogger) IsError() bool { return l.logger.Enabled(context.Background(), slog.LevelError) }

func (l *slogHCLogger) ImpliedArgs() []any { return l.args }

func (l *slogHCLogger) With(args ...any) hclog.Logger {
	return &slogHCLogger{
		logger: l.logger.With(args...),
		name:   l.name,
		args:   append(append([]any{}, l.args...), args...),
	}
}

func (l *slogHCLogger) Name() string { return l.name }

func (l *slogHCLogger) Named(name string) hclog.Logger {
	full := name
	if l.name != "" {
		full = l.name + "." + name
	}
	return &slogHCLogger{logger: l.logger.With("component", full), name: full, args: l.args}
}

func (l *slogHCLogger) ResetNamed(name string) hclog.Logger {
	return &slogHCLogger{logger: l.logger.With("component", name), name: name, args: l.args}
}

// SetLevel is a no-op: the level is owned by the slog handler.
func (l *slogHCLogger) SetLevel(hclog.Level) {}

func (l *slogHCLogger) GetLevel() hclog.Level {
	switch {
	case l.IsDebug():
		return hclog.Debug
	case l.IsInfo():
		return hclog.Info
	case l.IsWarn():
		return hclog.Warn
	default:
		return hclog.Error
	}
}

func (l *slogHCLogger) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(l.StandardWriter(opts), "", 0)
}

func (l *slogHCLogger) StandardWriter(*hclog.StandardLoggerOptions) io.Writer {
	return slogWriter{l.logger}
}

type slogWriter struct{ logger *slog.Logger }

func (w slogWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.logger.Debug(msg)
	return len(p), nil
}
