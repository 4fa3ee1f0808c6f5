// Package logging builds the zap loggers shared by every binary.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production logger named after component. debug lowers the
// level so propagation drops and other quiet events become visible.
func New(component string, debug bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if debug {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	config.EncoderConfig.TimeKey = "ts"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Named(component), nil
}

// Must is New for main packages that cannot continue without a logger.
func Must(component string, debug bool) *zap.Logger {
	logger, err := New(component, debug)
	if err != nil {
		panic(err)
	}
	return logger
}
