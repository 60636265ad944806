package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("info", "json", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("customer login", zap.String("customer_id", "c1"))
	_ = logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["msg"] != "customer login" || entry["customer_id"] != "c1" || entry["level"] != "info" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewWithWriter_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("debug", "console", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	logger.Debug("janitor tick")
	_ = logger.Sync()
	if !strings.Contains(buf.String(), "janitor tick") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New("loud", "json"); err == nil {
		t.Error("unknown level should fail")
	}
	if _, err := New("info", "xml"); err == nil {
		t.Error("unknown format should fail")
	}
}
