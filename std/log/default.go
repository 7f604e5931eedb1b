package log

import (
	"os"
	"sync/atomic"
)

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewText(os.Stderr))
}

// Default returns the process-wide logger.
func Default() *Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	defaultLogger.Store(l)
}

func Trace(t any, msg string, v ...any) {
	Default().log(t, msg, LevelTrace, v...)
}

func Debug(t any, msg string, v ...any) {
	Default().log(t, msg, LevelDebug, v...)
}

func Info(t any, msg string, v ...any) {
	Default().log(t, msg, LevelInfo, v...)
}

func Warn(t any, msg string, v ...any) {
	Default().log(t, msg, LevelWarn, v...)
}

func Error(t any, msg string, v ...any) {
	Default().log(t, msg, LevelError, v...)
}

func Fatal(t any, msg string, v ...any) {
	Default().log(t, msg, LevelFatal, v...)
	os.Exit(1)
}

// HasTrace returns if trace level is enabled.
func HasTrace() bool {
	return Default().Enabled(LevelTrace)
}
