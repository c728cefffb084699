package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerWritesFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(zerolog.New(&buf))

	log.Warn("dropping message", "session", int64(7), "opcode", 99, "error", errors.New("boom").Error())

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}

	if entry["level"] != "warn" {
		t.Errorf("level = %v, want warn", entry["level"])
	}
	if entry["message"] != "dropping message" {
		t.Errorf("message = %v, want dropping message", entry["message"])
	}
	if entry["session"] != float64(7) || entry["opcode"] != float64(99) {
		t.Errorf("fields = %v, want session=7 opcode=99", entry)
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v, want boom", entry["error"])
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(zerolog.New(&buf).Level(zerolog.InfoLevel))

	log.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug written at info level: %s", buf.String())
	}

	log.Info("shown")
	if buf.Len() == 0 {
		t.Error("info not written at info level")
	}
}

func TestWithAddsContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(zerolog.New(&buf)).With("component", "server")
	log.Info("started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["component"] != "server" {
		t.Errorf("component = %v, want server", entry["component"])
	}
}

func TestFieldsOddArguments(t *testing.T) {
	t.Parallel()

	got := fields([]any{"a", 1, 2, "b", "dangling"})
	if got["a"] != 1 || got["2"] != "b" || got["!BADKEY"] != "dangling" {
		t.Errorf("fields() = %v", got)
	}

	if fields(nil) != nil {
		t.Error("fields(nil) should be nil")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"INFO", zerolog.InfoLevel, false},
		{" warning ", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"", zerolog.NoLevel, true},
		{"loud", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNopDiscards(t *testing.T) {
	t.Parallel()

	log := Nop()
	log.Error("nothing", "k", "v")
}

func TestConsole(t *testing.T) {
	t.Setenv(EnvLevel, "")
	t.Setenv(EnvNoColor, "")

	var buf bytes.Buffer
	log := Console(&buf, "tickwire", zerolog.InfoLevel, true)
	log.Debug("hidden")
	log.Info("listening", "addr", ":8080")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line written at info level: %q", out)
	}
	for _, want := range []string{"INF", "listening", "app=tickwire", "addr=:8080"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q does not contain %q", out, want)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("output has colour codes: %q", out)
	}
}

func TestConsoleEnvLevel(t *testing.T) {
	t.Setenv(EnvLevel, "debug")

	var buf bytes.Buffer
	Console(&buf, "tickwire", zerolog.InfoLevel, true).Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("%s=debug did not lower the level: %q", EnvLevel, buf.String())
	}
}
