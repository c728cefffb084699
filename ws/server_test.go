package ws

import (
	"net/http/httptest"
	"testing"
)

func TestNewServerConfig(t *testing.T) {
	t.Parallel()

	cfg := NewServerConfig(":9000", NoRateLimit(), AllOrigins())
	if cfg.Addr != ":9000" || cfg.RateLimitConfig.Enabled || cfg.CheckOrigin == nil {
		t.Errorf("NewServerConfig() = %+v", cfg)
	}

	server := NewServer(cfg)
	if server.Addr() != ":9000" || server.Path() != "/ws" {
		t.Errorf("server addr/path = %s %s, want :9000 /ws", server.Addr(), server.Path())
	}
}

func TestAllOrigins(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Origin", "http://anywhere.example")
	if !AllOrigins()(req) {
		t.Error("AllOrigins() rejected a request")
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	if rl := DefaultRateLimitConfig(); !rl.Enabled || rl.MessagesPerSecond != 100 || rl.Burst != 200 {
		t.Errorf("DefaultRateLimitConfig() = %+v", rl)
	}
	if to := DefaultTimeouts(); to.PingPeriod >= to.PongWait {
		t.Errorf("DefaultTimeouts() ping %s not shorter than pong wait %s", to.PingPeriod, to.PongWait)
	}
	if NewDialer("ws://localhost:1/ws") == nil {
		t.Error("NewDialer() returned nil")
	}
}
