package mlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a named zap logger. It satisfies bootloader.Logger.
type Logger struct {
	s *zap.SugaredLogger
}

// New returns a logger named name on the cores configured with SetOutputTypes.
func New(name string) *Logger {
	logger := zap.New(NewCore(), zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{s: logger.Sugar().Named(name)}
}

// NewWithCore returns a logger on an explicit core.
func NewWithCore(name string, core zapcore.Core) *Logger {
	return &Logger{s: zap.New(core).Sugar().Named(name)}
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.s.Sync()
}
