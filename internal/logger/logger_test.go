package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dbsmedya/protomod/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected string // String representation of zapcore.Level
	}{
		{"debug", "debug"},
		{"info", "info"},
		{"", "info"}, // empty defaults to info
		{"warn", "warn"},
		{"error", "error"},
		{"unknown", "info"}, // unknown defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level := parseLevel(tt.input)
			if level.String() != tt.expected {
				t.Errorf("parseLevel(%q) = %v, expected %v", tt.input, level.String(), tt.expected)
			}
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.LoggingConfig
	}{
		{"json format info level", &config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}},
		{"text format debug level", &config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"}},
		{"file output", &config.LoggingConfig{Level: "warn", Format: "json", Output: filepath.Join(t.TempDir(), "log.json")}},
		{"defaults", &config.LoggingConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() failed: %v", err)
			}
			if logger == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	if logger == nil {
		t.Fatal("NewDefault() returned nil")
	}

	// Should be able to log without panic
	logger.Debug("test message")
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.WithModule("protomod.acme").WithFile("a.proto").Info("discarded")
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync() on nop logger failed: %v", err)
	}
}

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := FromZap(zap.New(core))

	logger.WithModule("protomod.acme").WithFile("acme/a.proto").Info("registered")
	logger.WithFields(map[string]interface{}{"b": 2, "a": 1}).Info("fields")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx["module"] != "protomod.acme" || ctx["file"] != "acme/a.proto" {
		t.Errorf("unexpected context: %v", ctx)
	}

	fields := entries[1].Context
	if len(fields) != 2 || fields[0].Key != "a" || fields[1].Key != "b" {
		t.Errorf("expected fields in key order, got %v", fields)
	}
}

func TestWithModule_ReturnsNewInstance(t *testing.T) {
	logger := NewNop()
	if logger.WithModule("x") == logger {
		t.Error("WithModule() should return a new logger instance")
	}
}

func TestBuildEncoder(t *testing.T) {
	for _, format := range []string{"json", "text", "unknown"} {
		if buildEncoder(format) == nil {
			t.Errorf("buildEncoder(%q) returned nil", format)
		}
	}
}

func TestBuildWriters(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", ""} {
		if buildWriters(output) == nil {
			t.Errorf("buildWriters(%q) returned nil", output)
		}
	}

	if buildWriters(filepath.Join(t.TempDir(), "out.log")) == nil {
		t.Error("buildWriters(file) returned nil")
	}
}

func TestLoggingOutput(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logger-test.json")

	logger, err := New(&config.LoggingConfig{Level: "info", Format: "json", Output: logPath})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	logger.Info("test info message")
	logger.Debug("filtered debug message")
	logger.WithModule("protomod.billing").Warn("message with module context")
	_ = logger.Sync()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	contentStr := string(content)
	if !strings.Contains(contentStr, "test info message") {
		t.Error("Log file should contain 'test info message'")
	}
	if strings.Contains(contentStr, "filtered debug message") {
		t.Error("Debug message should be filtered at info level")
	}
	if !strings.Contains(contentStr, `"module":"protomod.billing"`) {
		t.Error("Log file should contain module context")
	}
}
