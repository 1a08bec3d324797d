// Package log defines the narrow structured-logging interface used across
// the core services and a zap-backed implementation of it.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the minimal structured-logging contract every service depends
// on. Keyvals are alternating key/value pairs, matching the keyvals-style
// logging used throughout the surrounding ecosystem.
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
}

// zapLogger adapts *zap.SugaredLogger to Logger.
type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a production zap logger (JSON encoding, ISO8601 timestamps)
// wrapped as a Logger.
func New() (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{sugar: zl.Sugar()}, nil
}

// NewDevelopment builds a human-readable console logger, suited for local
// runs and tests.
func NewDevelopment() Logger {
	zl, err := zap.NewDevelopment()
	if err != nil {
		// zap.NewDevelopment only fails on a broken encoder config; this
		// build never overrides it, so fall back to a no-op rather than
		// panic from a logging constructor.
		return &noop{}
	}
	return &zapLogger{sugar: zl.Sugar()}
}

func (l *zapLogger) Debug(msg string, keyvals ...interface{}) { l.sugar.Debugw(msg, keyvals...) }
func (l *zapLogger) Info(msg string, keyvals ...interface{})  { l.sugar.Infow(msg, keyvals...) }
func (l *zapLogger) Warn(msg string, keyvals ...interface{})  { l.sugar.Warnw(msg, keyvals...) }
func (l *zapLogger) Error(msg string, keyvals ...interface{}) { l.sugar.Errorw(msg, keyvals...) }

// noop discards everything; used only if the development encoder cannot be
// built, which does not happen with the default config.
type noop struct{}

func (noop) Debug(string, ...interface{}) {}
func (noop) Info(string, ...interface{})  {}
func (noop) Warn(string, ...interface{})  {}
func (noop) Error(string, ...interface{}) {}
