package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tickwire.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
codec = "json"

[server]
addr = "127.0.0.1:9000"
path = "/game"
allowed_origins = ["https://play.example", " ", "https://beta.example"]
pong_wait = "30s"
ping_period = "25s"

[rate_limit]
enabled = false

[tick]
interval = "50ms"

[log]
level = "warning"
nocolor = true

[metrics]
path = "/prom"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Codec != "json" {
		t.Errorf("Codec = %q, want json", cfg.Codec)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || cfg.Server.Path != "/game" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://beta.example" {
		t.Errorf("AllowedOrigins = %q", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.PongWait != 30*time.Second || cfg.Server.PingPeriod != 25*time.Second {
		t.Errorf("keepalive = %s/%s, want 30s/25s", cfg.Server.PongWait, cfg.Server.PingPeriod)
	}
	if cfg.Server.WriteWait != 10*time.Second {
		t.Errorf("WriteWait = %s, want default 10s", cfg.Server.WriteWait)
	}
	if cfg.RateLimit.Enabled {
		t.Error("rate limit still enabled")
	}
	if cfg.RateLimit.Burst != 200 {
		t.Errorf("Burst = %d, want default 200", cfg.RateLimit.Burst)
	}
	if cfg.Tick.Interval != 50*time.Millisecond {
		t.Errorf("Tick.Interval = %s, want 50ms", cfg.Tick.Interval)
	}
	if cfg.Log.Level != "warning" || !cfg.Log.NoColor {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/prom" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoadEmptyFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := Default()
	if cfg.Server.Addr != def.Server.Addr || cfg.Tick != def.Tick || cfg.RateLimit != def.RateLimit || cfg.Codec != def.Codec {
		t.Errorf("Load(empty) = %+v, want %+v", cfg, def)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "syntax", content: "[server\n", wantErr: "load config"},
		{name: "unknown key", content: "[server]\nport = 1\n", wantErr: `unknown key "server.port"`},
		{name: "bad duration", content: "[tick]\ninterval = \"soon\"\n", wantErr: "parse tick.interval"},
		{name: "bad server duration", content: "[server]\npong_wait = \"x\"\n", wantErr: "parse server.pong_wait"},
		{name: "zero tick", content: "[tick]\ninterval = \"0s\"\n", wantErr: "tick.interval"},
		{name: "bad codec", content: "codec = \"xml\"\n", wantErr: "unknown codec"},
		{name: "bad level", content: "[log]\nlevel = \"loud\"\n", wantErr: "log.level"},
		{name: "path", content: "[server]\npath = \"ws\"\n", wantErr: "server.path"},
		{name: "metrics path clash", content: "[metrics]\npath = \"/ws\"\n", wantErr: "metrics.path and server.path"},
		{name: "ping after pong", content: "[server]\nping_period = \"2m\"\n", wantErr: "ping_period"},
		{name: "zero burst", content: "[rate_limit]\nburst = 0\n", wantErr: "rate_limit"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("Load() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("Load(missing) error = nil")
	}
}

func TestValidateMetricsDisabledSkipsPath(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Metrics.Enabled = false
	cfg.Metrics.Path = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}
