package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/tickwire/codec"
	"github.com/luciancaetano/tickwire/dispatch"
	"github.com/luciancaetano/tickwire/internal/config"
	"github.com/luciancaetano/tickwire/internal/logging"
	"github.com/luciancaetano/tickwire/metrics"
	"github.com/luciancaetano/tickwire/proto/sample"
	"github.com/luciancaetano/tickwire/server"
	"github.com/luciancaetano/tickwire/tick"
	"github.com/luciancaetano/tickwire/ws"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
		codecName  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sample protocol server",
		Long: `Start a WebSocket server for the sample protocol group.

Ping is answered with a Pong carrying the server time and Echo with an
EchoReply. Prometheus metrics are served next to the WebSocket endpoint.

Examples:
  tickwire serve
  tickwire serve --addr=127.0.0.1:9000
  tickwire serve --config=tickwire.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				var err error
				if cfg, err = config.Load(configPath); err != nil {
					return err
				}
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if codecName != "" {
				cfg.Codec = codecName
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.ErrOrStderr(), nil)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides server.addr)")
	cmd.Flags().StringVar(&codecName, "codec", "", "Payload codec: schema or json (overrides codec)")

	return cmd
}

// runServe serves until ctx is cancelled. ready, if set, receives the bound
// address once the listener is up.
func runServe(ctx context.Context, cfg config.Config, logOut io.Writer, ready func(addr string)) error {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.Console(logOut, "tickwire", level, cfg.Log.NoColor)

	registry := prometheus.NewRegistry()
	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		collector = metrics.New(metrics.WithRegistry(registry))
	}

	payloadCodec, err := codec.ByName(cfg.Codec, sample.ServerTable)
	if err != nil {
		return err
	}
	runtime := sample.NewServerRuntime(
		dispatch.WithCodec(payloadCodec),
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(collector),
	)

	transport := ws.NewServer(&ws.ServerConfig{
		Addr:            cfg.Server.Addr,
		Path:            cfg.Server.Path,
		RateLimitConfig: rateLimitConfig(cfg.RateLimit),
		CheckOrigin:     checkOrigin(cfg.Server.AllowedOrigins),
		ReadLimit:       cfg.Server.ReadLimit,
		SendQueueSize:   cfg.Server.SendQueueSize,
		Timeouts: ws.Timeouts{
			WriteWait:  cfg.Server.WriteWait,
			PongWait:   cfg.Server.PongWait,
			PingPeriod: cfg.Server.PingPeriod,
		},
		Routes: func(r chi.Router) {
			r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = io.WriteString(w, "ok\n")
			})
			if cfg.Metrics.Enabled {
				r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			}
		},
		Logger: logger,
	})

	srv := server.New(transport, runtime,
		server.WithLogger(logger),
		server.WithMetrics(collector),
		server.WithContext(ctx),
	)
	srv.OnConnect(func(id int64) {
		logger.Info("session connected", "session", id)
	})
	srv.OnDisconnect(func(id int64, code int, reason string) {
		logger.Info("session disconnected", "session", id, "code", code, "reason", reason)
	})
	sample.InstallEchoService(sample.NewServerStub(runtime), sample.NewServerProxy(srv.CreateOutboundProxy()), nil,
		func(id int64, err error) {
			logger.Warn("reply failed", "session", id, "error", err)
		})

	loop := tick.NewLoop(tick.WithLogger(logger), tick.WithMetrics(collector))
	loop.Register(srv)

	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("listening", "addr", transport.Addr(), "path", transport.Path(), "codec", payloadCodec.Name())
	if ready != nil {
		ready(transport.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx, cfg.Tick.Interval)
	})
	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Stop(stopCtx)
	})

	err = g.Wait()
	logger.Info("server stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func rateLimitConfig(c config.RateLimit) *ws.RateLimitConfig {
	if !c.Enabled {
		return ws.NoRateLimit()
	}
	return &ws.RateLimitConfig{
		Enabled:           true,
		MessagesPerSecond: rate.Limit(c.MessagesPerSecond),
		Burst:             c.Burst,
	}
}

// checkOrigin allows requests without an Origin header and requests whose
// origin is listed. An empty list allows everything.
func checkOrigin(allowed []string) ws.CheckOriginFn {
	if len(allowed) == 0 {
		return ws.AllOrigins()
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
