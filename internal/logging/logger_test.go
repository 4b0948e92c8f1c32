package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewWithWriterLevels(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter("info", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	logger.Info("visible", "token", 3)
	logger.V(1).Info("hidden")
	out := buf.String()
	if !strings.Contains(out, "visible") || strings.Contains(out, "hidden") {
		t.Fatalf("unexpected info output:\n%s", out)
	}

	buf.Reset()
	logger, err = NewWithWriter("debug", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter: %v", err)
	}
	logger.V(1).Info("fill complete")
	if !strings.Contains(buf.String(), "fill complete") {
		t.Fatalf("debug level should enable V(1):\n%s", buf.String())
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("chatty"); err == nil || !strings.Contains(err.Error(), "chatty") {
		t.Fatalf("expected unknown level error, got %v", err)
	}
}
