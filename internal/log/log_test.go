package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestVerbosityToLevel(t *testing.T) {
	tests := []struct {
		verbosity int
		expected  zapcore.Level
	}{
		{0, zapcore.ErrorLevel},
		{-1, zapcore.ErrorLevel},
		{1, zapcore.WarnLevel},
		{2, zapcore.InfoLevel},
		{3, zapcore.DebugLevel},
		{4, LevelTrace},
		{5, LevelTrace}, // anything > 4 maps to trace
	}

	for _, tt := range tests {
		got := VerbosityToLevel(tt.verbosity)
		if got != tt.expected {
			t.Errorf("VerbosityToLevel(%d) = %v, want %v", tt.verbosity, got, tt.expected)
		}
	}
}

func TestLevelToVerbosity(t *testing.T) {
	tests := []struct {
		level    zapcore.Level
		expected int
	}{
		{zapcore.ErrorLevel, VerbosityError},
		{zapcore.WarnLevel, VerbosityWarn},
		{zapcore.InfoLevel, VerbosityInfo},
		{zapcore.DebugLevel, VerbosityDebug},
		{LevelTrace, VerbosityTrace},
	}

	for _, tt := range tests {
		got := LevelToVerbosity(tt.level)
		if got != tt.expected {
			t.Errorf("LevelToVerbosity(%v) = %d, want %d", tt.level, got, tt.expected)
		}
	}
}

func TestLevelName(t *testing.T) {
	tests := []struct {
		level    zapcore.Level
		expected string
	}{
		{LevelTrace, "TRACE"},
		{zapcore.DebugLevel, "DEBUG"},
		{zapcore.InfoLevel, "INFO"},
		{zapcore.WarnLevel, "WARN"},
		{zapcore.ErrorLevel, "ERROR"},
	}

	for _, tt := range tests {
		got := LevelName(tt.level)
		if got != tt.expected {
			t.Errorf("LevelName(%v) = %q, want %q", tt.level, got, tt.expected)
		}
	}
}

// useBuffer points the global logger at buf for the duration of a test.
func useBuffer(t *testing.T, buf *bytes.Buffer, v int) {
	t.Helper()
	prev := logger.Load()
	prevV := Verbosity()
	SetVerbosity(v)
	logger.Store(zap.New(NewCore(CoreOptions{Level: level, Format: "text", Output: buf})))
	t.Cleanup(func() {
		logger.Store(prev)
		SetVerbosity(prevV)
	})
}

func TestInit(t *testing.T) {
	prev := logger.Load()
	t.Cleanup(func() {
		logger.Store(prev)
		SetVerbosity(VerbosityWarn)
	})

	Init(2, "text")
	if Verbosity() != 2 {
		t.Errorf("Verbosity() = %d, want 2", Verbosity())
	}
	if !level.Enabled(zapcore.InfoLevel) {
		t.Error("Init(2) should enable info level")
	}
}

func TestSetVerbosity(t *testing.T) {
	t.Cleanup(func() { SetVerbosity(VerbosityWarn) })

	SetVerbosity(3)
	if Verbosity() != 3 {
		t.Errorf("Verbosity() = %d, want 3", Verbosity())
	}

	SetVerbosity(0)
	if Verbosity() != 0 {
		t.Errorf("Verbosity() = %d, want 0", Verbosity())
	}
}

func TestV(t *testing.T) {
	var buf bytes.Buffer
	useBuffer(t, &buf, 2)

	V(2).Infow("should appear", "key", "value")
	if !strings.Contains(buf.String(), "should appear") {
		t.Errorf("V(2) should log when verbosity is 2, got: %s", buf.String())
	}

	buf.Reset()

	V(3).Infow("should not appear", "key", "value")
	if strings.Contains(buf.String(), "should not appear") {
		t.Errorf("V(3) should not log when verbosity is 2, got: %s", buf.String())
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	useBuffer(t, &buf, 2)

	Component("ledger").Infow("test message")

	if !strings.Contains(buf.String(), "component") || !strings.Contains(buf.String(), "ledger") {
		t.Errorf("Component should add component context, got: %s", buf.String())
	}
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	useBuffer(t, &buf, 4)

	Trace("deep detail", zap.String("path", "a.py"))
	if !strings.Contains(buf.String(), "TRACE") {
		t.Errorf("Trace should render TRACE level, got: %s", buf.String())
	}
}

func TestNewCore_JSON(t *testing.T) {
	var buf bytes.Buffer

	l := zap.New(NewCore(CoreOptions{Level: zapcore.InfoLevel, Format: "json", Output: &buf}))
	l.Sugar().Infow("test", "key", "value")

	if !strings.Contains(buf.String(), `"key":"value"`) {
		t.Errorf("JSON core should output JSON, got: %s", buf.String())
	}
}

func TestTee(t *testing.T) {
	var buf bytes.Buffer
	base := zap.New(NewCore(CoreOptions{Level: zapcore.InfoLevel, Output: &buf}))
	path := filepath.Join(t.TempDir(), "logs", "cycle.log")

	l, closeFn, err := Tee(base, path)
	if err != nil {
		t.Fatalf("Tee() error = %v", err)
	}
	l.Info("stage started", zap.String("stage", "manifest"))
	l.Debug("not recorded")
	if err := closeFn(); err != nil {
		t.Fatalf("close error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"stage":"manifest"`) {
		t.Errorf("trace file missing entry, got: %s", data)
	}
	if strings.Contains(string(data), "not recorded") {
		t.Errorf("trace file should skip debug entries, got: %s", data)
	}
	if !strings.Contains(buf.String(), "stage started") {
		t.Errorf("base logger should still receive entries, got: %s", buf.String())
	}
}
