package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToProjectLog(t *testing.T) {
	dir := t.TempDir()
	var mirror bytes.Buffer
	l, err := New(dir, Options{Level: "debug", Format: "json", Mirror: &mirror})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	l.Slog().Debug("segment crafted", "chain", "c1", "segment", 3)
	l.Printf("plain %s\n", "line")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, ".chainforge", "logs", "chainforge.log"))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, `"msg":"segment crafted"`) || !strings.Contains(text, `"segment":3`) {
		t.Fatalf("expected json debug line, got %s", text)
	}
	if !strings.Contains(text, "plain line") {
		t.Fatalf("expected printf line, got %s", text)
	}
	if mirror.String() != text {
		t.Fatalf("mirror should receive the same lines")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, "error": slog.LevelError, "": slog.LevelInfo, "loud": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Printf("ignored")
	if l.Slog() == nil {
		t.Fatalf("expected default slog logger")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close nil logger: %v", err)
	}
}
