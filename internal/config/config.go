// Package config loads the tickwire CLI configuration from a TOML file.
package config

import (
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"github.com/luciancaetano/tickwire/codec"
	"github.com/luciancaetano/tickwire/internal/logging"
)

// Config is the resolved configuration of the serve and ping commands.
type Config struct {
	Server    Server
	RateLimit RateLimit
	Tick      Tick
	Log       Log
	Metrics   Metrics

	// Codec is "schema" or "json".
	Codec string
}

type Server struct {
	Addr string
	Path string

	// AllowedOrigins restricts the Origin header. Empty allows every origin.
	AllowedOrigins []string

	ReadLimit     int64
	SendQueueSize int
	WriteWait     time.Duration
	PongWait      time.Duration
	PingPeriod    time.Duration
}

type RateLimit struct {
	Enabled           bool
	MessagesPerSecond float64
	Burst             int
}

type Tick struct {
	Interval time.Duration
}

type Log struct {
	Level   string
	NoColor bool
}

type Metrics struct {
	Enabled bool
	Path    string
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: Server{
			Addr:          ":8080",
			Path:          "/ws",
			ReadLimit:     1 << 20,
			SendQueueSize: 256,
			WriteWait:     10 * time.Second,
			PongWait:      60 * time.Second,
			PingPeriod:    54 * time.Second,
		},
		RateLimit: RateLimit{
			Enabled:           true,
			MessagesPerSecond: 100,
			Burst:             200,
		},
		Tick:    Tick{Interval: 16 * time.Millisecond},
		Log:     Log{Level: "info"},
		Metrics: Metrics{Enabled: true, Path: "/metrics"},
		Codec:   codec.SchemaName,
	}
}

type fileConfig struct {
	Codec     string        `toml:"codec"`
	Server    fileServer    `toml:"server"`
	RateLimit fileRateLimit `toml:"rate_limit"`
	Tick      fileTick      `toml:"tick"`
	Log       fileLog       `toml:"log"`
	Metrics   fileMetrics   `toml:"metrics"`
}

type fileServer struct {
	Addr           string   `toml:"addr"`
	Path           string   `toml:"path"`
	AllowedOrigins []string `toml:"allowed_origins"`
	ReadLimit      int64    `toml:"read_limit"`
	SendQueueSize  int      `toml:"send_queue_size"`
	WriteWait      string   `toml:"write_wait"`
	PongWait       string   `toml:"pong_wait"`
	PingPeriod     string   `toml:"ping_period"`
}

type fileRateLimit struct {
	Enabled           bool    `toml:"enabled"`
	MessagesPerSecond float64 `toml:"messages_per_second"`
	Burst             int     `toml:"burst"`
}

type fileTick struct {
	Interval string `toml:"interval"`
}

type fileLog struct {
	Level   string `toml:"level"`
	NoColor bool   `toml:"nocolor"`
}

type fileMetrics struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads path over Default and validates the result. Keys missing from
// the file keep their default.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, errors.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}

	cfg, err := merge(Default(), raw, meta)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func merge(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if meta.IsDefined("codec") {
		cfg.Codec = strings.TrimSpace(raw.Codec)
	}

	if meta.IsDefined("server", "addr") {
		cfg.Server.Addr = strings.TrimSpace(raw.Server.Addr)
	}
	if meta.IsDefined("server", "path") {
		cfg.Server.Path = strings.TrimSpace(raw.Server.Path)
	}
	if meta.IsDefined("server", "allowed_origins") {
		cfg.Server.AllowedOrigins = normalizeOrigins(raw.Server.AllowedOrigins)
	}
	if meta.IsDefined("server", "read_limit") {
		cfg.Server.ReadLimit = raw.Server.ReadLimit
	}
	if meta.IsDefined("server", "send_queue_size") {
		cfg.Server.SendQueueSize = raw.Server.SendQueueSize
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"write_wait", raw.Server.WriteWait, &cfg.Server.WriteWait},
		{"pong_wait", raw.Server.PongWait, &cfg.Server.PongWait},
		{"ping_period", raw.Server.PingPeriod, &cfg.Server.PingPeriod},
	}
	for _, d := range durations {
		if !meta.IsDefined("server", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, errors.Wrapf(err, "parse server.%s", d.key)
		}
		*d.dst = v
	}

	if meta.IsDefined("rate_limit", "enabled") {
		cfg.RateLimit.Enabled = raw.RateLimit.Enabled
	}
	if meta.IsDefined("rate_limit", "messages_per_second") {
		cfg.RateLimit.MessagesPerSecond = raw.RateLimit.MessagesPerSecond
	}
	if meta.IsDefined("rate_limit", "burst") {
		cfg.RateLimit.Burst = raw.RateLimit.Burst
	}

	if meta.IsDefined("tick", "interval") {
		v, err := time.ParseDuration(strings.TrimSpace(raw.Tick.Interval))
		if err != nil {
			return Config{}, errors.Wrap(err, "parse tick.interval")
		}
		cfg.Tick.Interval = v
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "nocolor") {
		cfg.Log.NoColor = raw.Log.NoColor
	}

	if meta.IsDefined("metrics", "enabled") {
		cfg.Metrics.Enabled = raw.Metrics.Enabled
	}
	if meta.IsDefined("metrics", "path") {
		cfg.Metrics.Path = strings.TrimSpace(raw.Metrics.Path)
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return errors.New("config: server.addr is empty")
	case !strings.HasPrefix(c.Server.Path, "/"):
		return errors.Errorf("config: server.path %q must start with /", c.Server.Path)
	case c.Server.ReadLimit < 0:
		return errors.Errorf("config: server.read_limit %d is negative", c.Server.ReadLimit)
	case c.Server.SendQueueSize < 0:
		return errors.Errorf("config: server.send_queue_size %d is negative", c.Server.SendQueueSize)
	case c.Server.PongWait > 0 && c.Server.PingPeriod >= c.Server.PongWait:
		return errors.Errorf("config: server.ping_period %s must be shorter than server.pong_wait %s",
			c.Server.PingPeriod, c.Server.PongWait)
	case c.Tick.Interval <= 0:
		return errors.Errorf("config: tick.interval %s must be positive", c.Tick.Interval)
	}

	if c.RateLimit.Enabled && (c.RateLimit.MessagesPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return errors.Errorf("config: rate_limit needs positive messages_per_second and burst, got %v and %d",
			c.RateLimit.MessagesPerSecond, c.RateLimit.Burst)
	}

	if c.Metrics.Enabled {
		if !strings.HasPrefix(c.Metrics.Path, "/") {
			return errors.Errorf("config: metrics.path %q must start with /", c.Metrics.Path)
		}
		if c.Metrics.Path == c.Server.Path {
			return errors.Errorf("config: metrics.path and server.path are both %q", c.Metrics.Path)
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "config: log.level")
	}

	switch c.Codec {
	case codec.SchemaName, codec.JSONName:
	default:
		return errors.Errorf("config: unknown codec %q", c.Codec)
	}
	return nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
