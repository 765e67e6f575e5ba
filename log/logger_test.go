package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Context{
		Component:    "fetch",
		InvocationID: "inv-1",
		Package:      "com.example.app",
	}, &buf, zapcore.InfoLevel)

	l.Info("resolved", map[string]any{"fragments": 3})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	got := lines[0]
	for k, want := range map[string]string{
		"level":         "info",
		"message":       "resolved",
		"component":     "fetch",
		"invocation_id": "inv-1",
		"package":       "com.example.app",
	} {
		if got[k] != want {
			t.Errorf("%s = %v, want %q", k, got[k], want)
		}
	}
	fields, ok := got["fields"].(map[string]any)
	if !ok || fields["fragments"] != float64(3) {
		t.Errorf("fields = %v", got["fields"])
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Context{}, &buf, zapcore.InfoLevel)
	l.Debug("hidden", nil)
	l.Warn("shown", nil)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["message"] != "shown" {
		t.Fatalf("lines = %v", lines)
	}
}

func TestLogger_NamedAndWith(t *testing.T) {
	var buf bytes.Buffer
	l := newLoggerWithWriter(Context{}, &buf, zapcore.InfoLevel).
		Named("broker").
		With(map[string]any{"socket": "/tmp/b.sock"})
	l.Error("listen failed", nil)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[0]["component"] != "broker" || lines[0]["socket"] != "/tmp/b.sock" {
		t.Errorf("line = %v", lines[0])
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := Nop()
	if OrNop(l) != l {
		t.Error("OrNop should return the given logger")
	}
	OrNop(nil).Info("discarded", nil)
}
