// Package util provides logging and unit helpers for the dashboard.
package util

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.SugaredLogger

// InitLogger initializes the global logger.
// Unknown levels fall back to info; format is "console" or "json".
func InitLogger(level, format, file string) error {
	zapLevel := zapcore.InfoLevel
	if level != "" {
		if parsed, err := zapcore.ParseLevel(strings.ToLower(level)); err == nil {
			zapLevel = parsed
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if format == "json" {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	writeSyncer := zapcore.AddSync(os.Stdout)
	if file != "" {
		f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		writeSyncer = zapcore.NewMultiWriteSyncer(writeSyncer, zapcore.AddSync(f))
	}

	core := zapcore.NewCore(encoder, writeSyncer, zapLevel)
	logger = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
	return nil
}

// Log returns the global logger
func Log() *zap.SugaredLogger {
	if logger == nil {
		zapLogger, _ := zap.NewDevelopment()
		logger = zapLogger.Sugar()
	}
	return logger
}

// Sync flushes buffered log entries.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// Debug logs a debug message
func Debug(args ...interface{}) {
	Log().Debug(args...)
}

// Debugf logs a formatted debug message
func Debugf(template string, args ...interface{}) {
	Log().Debugf(template, args...)
}

// Info logs an info message
func Info(args ...interface{}) {
	Log().Info(args...)
}

// Infof logs a formatted info message
func Infof(template string, args ...interface{}) {
	Log().Infof(template, args...)
}

// Warn logs a warning message
func Warn(args ...interface{}) {
	Log().Warn(args...)
}

// Warnf logs a formatted warning message
func Warnf(template string, args ...interface{}) {
	Log().Warnf(template, args...)
}

// Warnw logs a warning with structured key/value context
func Warnw(msg string, keysAndValues ...interface{}) {
	Log().Warnw(msg, keysAndValues...)
}

// Error logs an error message
func Error(args ...interface{}) {
	Log().Error(args...)
}

// Errorf logs a formatted error message
func Errorf(template string, args ...interface{}) {
	Log().Errorf(template, args...)
}

// Fatalf logs a formatted fatal message and exits
func Fatalf(template string, args ...interface{}) {
	Log().Fatalf(template, args...)
}
