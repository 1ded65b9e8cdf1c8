package main

import (
	"strings"
	"testing"
	"time"

	"overture/internal/logging"
)

func TestParseValues(t *testing.T) {
	values, err := parseValues([]string{"port=9000", "app_name=demo", "empty="})
	if err != nil {
		t.Fatalf("parseValues: %v", err)
	}
	if values["port"] != "9000" || values["app_name"] != "demo" || values["empty"] != "" {
		t.Fatalf("unexpected values %v", values)
	}

	if _, err := parseValues([]string{"noequals"}); err == nil {
		t.Fatalf("expected error for pair without '='")
	}
	if _, err := parseValues([]string{"=value"}); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestWebsocketURL(t *testing.T) {
	client := &apiClient{base: "http://127.0.0.1:8420", token: "secret"}
	target, err := client.websocketURL("/ws/environments/env_1234abcd/output")
	if err != nil {
		t.Fatalf("websocketURL: %v", err)
	}
	if !strings.HasPrefix(target, "ws://127.0.0.1:8420/ws/environments/env_1234abcd/output") {
		t.Fatalf("unexpected URL %q", target)
	}
	if !strings.Contains(target, "token=secret") {
		t.Fatalf("token missing from %q", target)
	}

	client = &apiClient{base: "https://overture.example.com"}
	target, err = client.websocketURL("/ws/environments/env_1/output")
	if err != nil {
		t.Fatalf("websocketURL: %v", err)
	}
	if !strings.HasPrefix(target, "wss://") {
		t.Fatalf("expected wss scheme, got %q", target)
	}
	if strings.Contains(target, "token=") {
		t.Fatalf("unexpected token in %q", target)
	}

	client = &apiClient{base: "ftp://bad"}
	if _, err := client.websocketURL("/ws"); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestRenderOutputLinePrefix(t *testing.T) {
	line := renderOutputLine("API", "green", "stdout", "listening")
	if !strings.Contains(line, "[API]") || !strings.Contains(line, "listening") {
		t.Fatalf("unexpected rendering %q", line)
	}

	// Unknown colors still render a tag.
	line = renderOutputLine("proc-2", "", "stderr", "boom")
	if !strings.Contains(line, "[proc-2]") || !strings.Contains(line, "boom") {
		t.Fatalf("unexpected rendering %q", line)
	}
}

func TestRenderLogEntrySortsContext(t *testing.T) {
	entry := logging.LogEntry{
		Timestamp: time.Now(),
		Level:     logging.LevelWarning,
		Message:   "template dir load failed",
		Context:   map[string]string{"error": "boom", "dir": "/tmp/tpl"},
	}
	line := renderLogEntry(entry)
	if !strings.Contains(line, "warning") || !strings.Contains(line, "template dir load failed") {
		t.Fatalf("unexpected rendering %q", line)
	}
	if strings.Index(line, "dir=") > strings.Index(line, "error=") {
		t.Fatalf("context keys not sorted in %q", line)
	}
}

func TestPadRight(t *testing.T) {
	if got := padRight("ab", 5); got != "ab   " {
		t.Fatalf("padRight short: %q", got)
	}
	if got := padRight("abcdef", 3); got != "abcdef" {
		t.Fatalf("padRight long: %q", got)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   uint64
		want string
	}{
		{512, "512B"},
		{2048, "2.0KiB"},
		{3 << 20, "3.0MiB"},
		{1 << 30, "1.0GiB"},
	}
	for _, tc := range cases {
		if got := formatBytes(tc.in); got != tc.want {
			t.Fatalf("formatBytes(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
