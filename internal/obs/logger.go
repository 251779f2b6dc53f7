// Copyright 2025 James Ross
package obs

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

func NewLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "json"
	return cfg.Build()
}

// RotatingFileConfig configures the lumberjack-backed core used for
// file-based deployments that need log rotation instead of stdout capture.
type RotatingFileConfig struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewRotatingCore builds a zapcore.Core that writes JSON-encoded entries to a
// lumberjack-rotated file at the given level.
func NewRotatingCore(level string, rf RotatingFileConfig) zapcore.Core {
	lvl := zapcore.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	}
	writer := &lumberjack.Logger{
		Filename:   rf.Filename,
		MaxSize:    rf.MaxSizeMB,
		MaxBackups: rf.MaxBackups,
		MaxAge:     rf.MaxAgeDays,
		Compress:   rf.Compress,
	}
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(writer), lvl)
}

// NewLoggerWithRotation builds a logger that writes to both stderr (for
// local/container capture) and a rotating file, useful for the coordinator
// and simulator processes which run unattended for long periods.
func NewLoggerWithRotation(level string, rf RotatingFileConfig) (*zap.Logger, error) {
	base, err := NewLogger(level)
	if err != nil {
		return nil, err
	}
	if rf.Filename == "" {
		return base, nil
	}
	rotating := NewRotatingCore(level, rf)
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, rotating)
	})), nil
}

// Convenience typed fields
func String(k, v string) zap.Field  { return zap.String(k, v) }
func Int(k string, v int) zap.Field { return zap.Int(k, v) }
func Bool(k string, v bool) zap.Field { return zap.Bool(k, v) }
func Float64(k string, v float64) zap.Field { return zap.Float64(k, v) }
func Err(err error) zap.Field { return zap.Error(err) }
