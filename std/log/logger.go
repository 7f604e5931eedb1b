package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
)

// Logger writes structured records through log/slog.
// Every call takes a tag first: usually the component emitting the record.
type Logger struct {
	slog  *slog.Logger
	level atomic.Int64
}

// Tag is implemented by components that name themselves in log records.
type Tag interface {
	String() string
}

func newLogger(h slog.Handler) *Logger {
	l := &Logger{slog: slog.New(h)}
	l.level.Store(int64(LevelInfo))
	return l
}

func handlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: slog.Level(LevelTrace),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				a.Value = slog.StringValue(Level(a.Value.Any().(slog.Level)).String())
			}
			return a
		},
	}
}

// NewText creates a logger writing logfmt-style text.
func NewText(w io.Writer) *Logger {
	return newLogger(slog.NewTextHandler(w, handlerOptions()))
}

// NewJson creates a logger writing one JSON object per record.
func NewJson(w io.Writer) *Logger {
	return newLogger(slog.NewJSONHandler(w, handlerOptions()))
}

// SetLevel sets the logging level and returns the previous level.
func (l *Logger) SetLevel(level Level) Level {
	return Level(l.level.Swap(int64(level)))
}

// Level returns the current logging level.
func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

// Enabled reports whether records at the given level are emitted.
func (l *Logger) Enabled(level Level) bool {
	return l.Level() <= level
}

func (l *Logger) log(t any, msg string, level Level, v ...any) {
	if !l.Enabled(level) {
		return
	}

	// caller is useful when debugging, noise otherwise
	if l.Level() <= LevelDebug {
		if pc, _, _, ok := runtime.Caller(2); ok {
			if f := runtime.FuncForPC(pc); f != nil {
				v = append(v, slog.SourceKey, f.Name())
			}
		}
	}

	switch tag := t.(type) {
	case nil:
	case Tag:
		v = append([]any{"tag", tag.String()}, v...)
	default:
		v = append([]any{"tag", tag}, v...)
	}

	l.slog.Log(context.Background(), slog.Level(level), msg, v...)
}

func (l *Logger) Trace(t any, msg string, v ...any) {
	l.log(t, msg, LevelTrace, v...)
}

func (l *Logger) Debug(t any, msg string, v ...any) {
	l.log(t, msg, LevelDebug, v...)
}

func (l *Logger) Info(t any, msg string, v ...any) {
	l.log(t, msg, LevelInfo, v...)
}

func (l *Logger) Warn(t any, msg string, v ...any) {
	l.log(t, msg, LevelWarn, v...)
}

func (l *Logger) Error(t any, msg string, v ...any) {
	l.log(t, msg, LevelError, v...)
}

// Fatal logs the message and terminates the process.
func (l *Logger) Fatal(t any, msg string, v ...any) {
	l.log(t, msg, LevelFatal, v...)
	os.Exit(1)
}
