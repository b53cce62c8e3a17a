// Package logging builds the zap loggers used by zqueue's commands.
package logging

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	// LevelNone disables logging.
	LevelNone = "none"
)

// NewLogger returns a logger writing JSON lines to w at the given level.
func NewLogger(logLevel string, w io.Writer) (*zap.Logger, error) {
	if logLevel == LevelNone {
		return zap.NewNop(), nil
	}
	lvl, err := parseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(w),
		zap.NewAtomicLevelAt(lvl),
	)
	return zap.New(core), nil
}

func parseLevel(logLevel string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return lvl, fmt.Errorf("log level %q: %w", logLevel, err)
	}
	return lvl, nil
}
