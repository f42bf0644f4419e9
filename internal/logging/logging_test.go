package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestWithRequest(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	WithRequest(base, "req-123").Info("hello")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-123") {
		t.Errorf("expected request_id in output, got: %s", out)
	}
}

func TestWithRequest_NilLogger(t *testing.T) {
	if WithRequest(nil, "x") != nil {
		t.Error("WithRequest(nil, ...) should return nil")
	}
}

func TestComponentFiltering(t *testing.T) {
	var buf bytes.Buffer
	if err := Initialize(Config{Level: "debug", Components: []string{"auth"}, Output: &buf}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = Initialize(Config{Level: "info", Output: os.Stderr}) })

	Auth().Info("auth event")
	Web().Info("web event")

	out := buf.String()
	if !strings.Contains(out, "auth event") || !strings.Contains(out, "component=auth") {
		t.Errorf("expected auth record, got: %s", out)
	}
	if strings.Contains(out, "web event") {
		t.Errorf("web record should be filtered, got: %s", out)
	}
}

func TestInitialize_FileOutput(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "site.log")
	if err := Initialize(Config{Level: "info", Output: &buf, File: &FileLogConfig{Path: path}}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	Content().Info("written to file")
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	t.Cleanup(func() { _ = Initialize(Config{Level: "info", Output: os.Stderr}) })

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "written to file") {
		t.Errorf("log file missing record: %s", data)
	}
	if !strings.Contains(buf.String(), "written to file") {
		t.Errorf("console missing record: %s", buf.String())
	}
}
