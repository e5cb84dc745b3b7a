package utils

import "go.uber.org/zap"

// Logger is a thin key/value wrapper over zap's sugared logger.
type Logger struct {
	s *zap.SugaredLogger
}

func NewLogger() *Logger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return &Logger{s: l.Sugar()}
}

// NewNopLogger discards everything (used in tests).
func NewNopLogger() *Logger { return &Logger{s: zap.NewNop().Sugar()} }

func (l *Logger) Debug(msg string, kv ...any) { l.s.Debugw(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.s.Infow(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.s.Warnw(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.s.Errorw(msg, kv...) }

func (l *Logger) Sync() { _ = l.s.Sync() }
