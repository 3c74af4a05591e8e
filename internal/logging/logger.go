package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file written inside the log directory.
const FileName = "healthcheck.log"

type Options struct {
	Dir     string // rotating JSON log file; empty disables it
	Debug   bool   // lower both cores to debug
	Console bool   // also write human-readable lines to stderr
}

// NewLogger builds a JSON file logger rotated by lumberjack, optionally teed
// to stderr. The console core only shows warnings unless Debug is set.
func NewLogger(opts Options) (*zap.Logger, error) {
	fileLevel, consoleLevel := zapcore.InfoLevel, zapcore.WarnLevel
	if opts.Debug {
		fileLevel, consoleLevel = zapcore.DebugLevel, zapcore.DebugLevel
	}

	var cores []zapcore.Core
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, err
		}
		w := zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, FileName),
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		})
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(cfg), w, fileLevel))
	}
	if opts.Console {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stderr), consoleLevel))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}
