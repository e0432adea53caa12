// Package log is the process-wide structured logger used across infraql.
// It keeps sqlvibe's original package-level Debug/Info/Warn/Error/Fatal
// surface and its single mutex-guarded default logger, but delegates
// formatting and level-gating to go-kit/log instead of a hand-rolled writer.
package log

import (
	"fmt"
	"os"
	"sync"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

type Logger struct {
	mu      sync.Mutex
	level   Level
	base    kitlog.Logger
	filter  kitlog.Logger
	withCtx []interface{}
}

var defaultLogger *Logger

func init() {
	defaultLogger = New(os.Stderr)
}

// New builds a Logger writing logfmt lines to w, gated at LevelInfo.
func New(w interface{ Write([]byte) (int, error) }) *Logger {
	base := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(w))
	base = kitlog.With(base, "ts", kitlog.DefaultTimestampUTC)
	l := &Logger{base: base, level: LevelInfo}
	l.rebuild()
	return l
}

func (l *Logger) rebuild() {
	opt := level.AllowInfo()
	switch l.level {
	case LevelDebug:
		opt = level.AllowDebug()
	case LevelWarn:
		opt = level.AllowWarn()
	case LevelError, LevelFatal:
		opt = level.AllowError()
	}
	l.filter = level.NewFilter(l.base, opt)
}

// With returns a child logger with additional key/value context fields.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	child := &Logger{
		base:    kitlog.With(l.base, keyvals...),
		level:   l.level,
		withCtx: append(append([]interface{}{}, l.withCtx...), keyvals...),
	}
	child.rebuild()
	return child
}

func SetLevel(lvl Level) { defaultLogger.SetLevel(lvl) }

func (l *Logger) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = lvl
	l.rebuild()
}

func Debug(format string, args ...interface{}) { defaultLogger.Debug(format, args...) }
func Info(format string, args ...interface{})  { defaultLogger.Info(format, args...) }
func Warn(format string, args ...interface{})  { defaultLogger.Warn(format, args...) }
func Error(format string, args ...interface{}) { defaultLogger.Error(format, args...) }
func Fatal(format string, args ...interface{}) { defaultLogger.Fatal(format, args...) }

func With(keyvals ...interface{}) *Logger { return defaultLogger.With(keyvals...) }

func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }

func (l *Logger) Fatal(format string, args ...interface{}) {
	l.log(LevelFatal, format, args...)
	os.Exit(1)
}

func (l *Logger) log(lvl Level, format string, args ...interface{}) {
	l.mu.Lock()
	filter := l.filter
	l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	var logFn func(kitlog.Logger) kitlog.Logger
	switch lvl {
	case LevelDebug:
		logFn = level.Debug
	case LevelWarn:
		logFn = level.Warn
	case LevelError, LevelFatal:
		logFn = level.Error
	default:
		logFn = level.Info
	}
	_ = logFn(filter).Log("msg", msg)
}
