package logging

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNew_DefaultConfig(t *testing.T) {
	logger, level, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger == nil {
		t.Fatal("expected a logger")
	}
	if level.Level() != zapcore.InfoLevel {
		t.Errorf("expected info level, got %v", level.Level())
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be disabled at info level")
	}

	level.SetLevel(zapcore.DebugLevel)
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug should be enabled after changing the atomic level")
	}
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNew_ConsoleToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, _, err := New(Config{
		Level:       "warn",
		Development: true,
		Encoding:    "console",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	logger.Warn("statement cache over capacity")
	_ = logger.Sync()
}

func TestMust_PanicsOnBadConfig(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Must(Config{Level: "nope"})
}
