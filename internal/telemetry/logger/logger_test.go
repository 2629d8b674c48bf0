package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "default config", cfg: DefaultConfig()},
		{name: "json format", cfg: Config{Level: "debug", Format: "json"}},
		{name: "text format", cfg: Config{Level: "info", Format: "text"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if l == nil || l.Slog() == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		level   string
		logFunc func(string, ...any)
	}{
		{"DEBUG", l.Debug},
		{"INFO", l.Info},
		{"WARN", l.Warn},
		{"ERROR", l.Error},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf.Reset()
			tt.logFunc("test message", "component", "sync")

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("output is not JSON: %v", err)
			}
			if entry["level"] != tt.level {
				t.Errorf("level = %v, want %v", entry["level"], tt.level)
			}
			if entry["component"] != "sync" {
				t.Errorf("component = %v, want sync", entry["component"])
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Level: "warn", Format: "json", Output: &buf})

	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}

	l.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn should pass at warn level")
	}
}

func TestSetLevel(t *testing.T) {
	orig := GetLevel()
	defer SetLevel(orig)

	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		SetLevel(lvl)
		if got := GetLevel(); got != lvl {
			t.Errorf("GetLevel() = %q, want %q", got, lvl)
		}
	}

	SetLevel("warning")
	if got := GetLevel(); got != "warn" {
		t.Errorf("GetLevel() = %q, want warn", got)
	}

	SetLevel("bogus")
	if got := GetLevel(); got != "info" {
		t.Errorf("GetLevel() = %q, want info", got)
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Level: "info", Format: "json", Output: &buf})

	l.With("workspace", "ws1").Info("pushed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["workspace"] != "ws1" {
		t.Errorf("workspace = %v, want ws1", entry["workspace"])
	}
}

func TestLogger_WithContext(t *testing.T) {
	var buf bytes.Buffer
	l, _ := New(Config{Level: "info", Format: "json", Output: &buf})

	l.WithContext(context.Background()).Info("ok")
	if buf.Len() == 0 {
		t.Error("expected output")
	}
}

func TestLogger_FileSink(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "meshsync.log")

	l, err := New(Config{Level: "info", Format: "json", Output: &buf, File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	l.Info("to both")
	if err := Close(l); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") {
		t.Errorf("file sink missing entry: %q", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("stream sink missing entry: %q", buf.String())
	}
}

func TestClose_NoFile(t *testing.T) {
	l, _ := New(Config{Output: &bytes.Buffer{}})
	if err := Close(l); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDefault(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	var buf bytes.Buffer
	l, _ := New(Config{Level: "info", Format: "json", Output: &buf})
	SetDefault(l)

	if Default() != l {
		t.Error("Default() should return the logger set by SetDefault")
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing")
}
