// Package ws exposes the WebSocket transports.
package ws

import (
	"net/http"

	"github.com/luciancaetano/tickwire/internal/websocket"
)

type (
	Server          = websocket.Server
	Dialer          = websocket.Dialer
	Conn            = websocket.Conn
	ServerConfig    = websocket.ServerConfig
	DialerConfig    = websocket.DialerConfig
	RateLimitConfig = websocket.RateLimitConfig
	Timeouts        = websocket.Timeouts
	CheckOriginFn   = websocket.CheckOriginFn
	RoutesFn        = websocket.RoutesFn
)

// ErrSendQueueFull is returned by Send when a connection's outbound queue is full.
var ErrSendQueueFull = websocket.ErrSendQueueFull

// NewServer creates a WebSocket server transport.
//
// Example:
//
//	transport := ws.NewServer(ws.NewServerConfig(":8080", ws.DefaultRateLimitConfig(), ws.AllOrigins()))
//	srv := server.New(transport, runtime)
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
func NewServer(cfg *ServerConfig) *Server {
	return websocket.New(cfg)
}

// NewServerConfig returns a config with the common fields set. The remaining
// fields keep their defaults and can be set on the returned value.
func NewServerConfig(addr string, rateLimitConfig *RateLimitConfig, checkOrigin CheckOriginFn) *ServerConfig {
	return &ServerConfig{
		Addr:            addr,
		RateLimitConfig: rateLimitConfig,
		CheckOrigin:     checkOrigin,
	}
}

// NewDialer creates a client connector for url, for example
// "ws://localhost:8080/ws".
func NewDialer(url string) *Dialer {
	return websocket.NewDialer(&DialerConfig{URL: url})
}

// NewDialerWithConfig creates a client connector from a full config.
func NewDialerWithConfig(cfg *DialerConfig) *Dialer {
	return websocket.NewDialer(cfg)
}

// AllOrigins returns the default checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return websocket.DefaultRateLimitConfig()
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return websocket.NoRateLimit()
}

// DefaultTimeouts returns the default deadlines and keepalive period.
func DefaultTimeouts() Timeouts {
	return websocket.DefaultTimeouts()
}
