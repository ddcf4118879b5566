package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestInitLoggerLevels(t *testing.T) {
	levels := []string{"", "debug", "info", "warn", "error", "unknown", "DEBUG"}

	for _, level := range levels {
		t.Run(level, func(t *testing.T) {
			logger = nil
			if err := InitLogger(level, "console", ""); err != nil {
				t.Fatalf("InitLogger(%q) error = %v", level, err)
			}
			if logger == nil {
				t.Fatal("logger should be set after InitLogger")
			}

			Debug("debug")
			Debugf("debug %s", "f")
			Info("info")
			Infof("info %s", "f")
			Warn("warn")
			Warnf("warn %s", "f")
			Warnw("warn", "source", "test")
			Error("error")
			Errorf("error %s", "f")
		})
	}
}

func TestInitLoggerJSONFormat(t *testing.T) {
	logger = nil

	if err := InitLogger("info", "json", ""); err != nil {
		t.Fatalf("InitLogger() error = %v", err)
	}
	Info("json formatted log")
}

func TestInitLoggerWithFile(t *testing.T) {
	logger = nil
	logFile := filepath.Join(t.TempDir(), "dashboard.log")

	if err := InitLogger("info", "console", logFile); err != nil {
		t.Fatalf("InitLogger() error = %v", err)
	}
	Infof("tick %d", 1)
	Sync()

	if _, err := os.Stat(logFile); os.IsNotExist(err) {
		t.Error("log file should exist")
	}
}

func TestInitLoggerInvalidFile(t *testing.T) {
	logger = nil

	if err := InitLogger("info", "console", "/nonexistent/path/dashboard.log"); err == nil {
		t.Error("InitLogger() should fail for an unwritable path")
	}
}

func TestLogReturnsDefaultLogger(t *testing.T) {
	logger = nil

	if Log() == nil {
		t.Error("Log() should return a logger even when not initialized")
	}
}

func TestMultipleLoggerInitialization(t *testing.T) {
	logger = nil

	if err := InitLogger("info", "console", ""); err != nil {
		t.Fatalf("first InitLogger() error = %v", err)
	}
	first := logger

	if err := InitLogger("debug", "json", ""); err != nil {
		t.Fatalf("second InitLogger() error = %v", err)
	}
	if logger == first {
		t.Error("logger should be replaced after re-initialization")
	}
}

func BenchmarkInfof(b *testing.B) {
	logger = nil
	InitLogger("error", "console", "")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Infof("benchmark %s %d", "message", i)
	}
}
