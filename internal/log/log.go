// Package log wraps a package-level zap logger.
package log

import (
	"fmt"

	"go.uber.org/zap"
)

// Nop until Init so library code and tests can log without setup.
var (
	base  = zap.NewNop()
	sugar = base.Sugar()
)

// Init replaces the package logger. debug selects the development encoder and
// debug level.
func Init(debug bool) error {
	var (
		l   *zap.Logger
		err error
	)
	if debug {
		l, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		l, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %w", err)
	}

	base = l
	sugar = l.Sugar()
	return nil
}

// Logger returns the underlying zap logger.
func Logger() *zap.Logger {
	return base
}

// With returns a child sugared logger carrying the given fields.
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return sugar.With(keysAndValues...)
}

// Sync flushes buffered entries.
func Sync() {
	_ = sugar.Sync()
}

func Debugf(template string, args ...interface{}) {
	sugar.Debugf(template, args...)
}

func Debugw(msg string, keysAndValues ...interface{}) {
	sugar.Debugw(msg, keysAndValues...)
}

func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	sugar.Warnw(msg, keysAndValues...)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	sugar.Errorw(msg, keysAndValues...)
}

// Fatalf logs and exits the process.
func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}
