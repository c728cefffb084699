package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/luciancaetano/tickwire"
	"github.com/luciancaetano/tickwire/codec"
	"github.com/luciancaetano/tickwire/dispatch"
	"github.com/luciancaetano/tickwire/proto/sample"
	"github.com/luciancaetano/tickwire/session"
	"github.com/luciancaetano/tickwire/tick"
	"github.com/luciancaetano/tickwire/ws"
)

const pingTickInterval = 10 * time.Millisecond

type pingOptions struct {
	URL     string
	Count   int
	Message string
	Codec   string
	Timeout time.Duration
}

func pingCmd() *cobra.Command {
	opts := pingOptions{
		URL:     "ws://localhost:8080/ws",
		Count:   3,
		Codec:   codec.SchemaName,
		Timeout: 10 * time.Second,
	}

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Ping a tickwire server",
		Long: `Connect to a server, send Ping messages and print the round trip of
every Pong. With --message an Echo is sent as well.

Examples:
  tickwire ping
  tickwire ping --url=ws://127.0.0.1:9000/ws --count=10
  tickwire ping --message=hello`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPing(ctx, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.URL, "url", "u", opts.URL, "Server WebSocket URL")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", opts.Count, "Number of pings")
	cmd.Flags().StringVarP(&opts.Message, "message", "m", "", "Also send an Echo with this text")
	cmd.Flags().StringVar(&opts.Codec, "codec", opts.Codec, "Payload codec: schema or json")
	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", opts.Timeout, "Give up after this long")

	return cmd
}

func runPing(ctx context.Context, opts pingOptions, out io.Writer) error {
	if opts.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", opts.Count)
	}
	payloadCodec, err := codec.ByName(opts.Codec, sample.ClientTable)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	runtime := sample.NewClientRuntime(dispatch.WithCodec(payloadCodec))
	sess := session.New(1, ws.NewDialer(opts.URL), runtime, session.WithContext(ctx))
	proxy := sample.NewClientProxy(runtime.CreateOutboundProxy(sess.SendFrame))

	// Everything below runs on this goroutine, inside TickAll.
	var (
		pongs    int
		echoed   = opts.Message == ""
		closed   bool
		closeErr error
		sendErr  error
	)

	stub := sample.NewClientStub(runtime)
	stub.OnPong(func(_ context.Context, _ tickwire.Envelope, msg *sample.Pong) {
		pongs++
		rtt := time.Since(time.UnixMilli(msg.Timestamp))
		fmt.Fprintf(out, "pong %d: rtt=%s server_time=%s\n", pongs, rtt.Round(time.Millisecond),
			time.UnixMilli(msg.ServerTime).UTC().Format(time.RFC3339Nano))
	})
	stub.OnEchoReply(func(_ context.Context, _ tickwire.Envelope, msg *sample.EchoReply) {
		echoed = true
		fmt.Fprintf(out, "echo: %s\n", msg.Message)
	})

	sess.OnOpen(func() {
		for i := 0; i < opts.Count && sendErr == nil; i++ {
			sendErr = proxy.SendPing(&sample.Ping{Timestamp: time.Now().UnixMilli(), Payload: fmt.Sprint(i + 1)})
		}
		if opts.Message != "" && sendErr == nil {
			sendErr = proxy.SendEcho(&sample.Echo{Message: opts.Message})
		}
	})
	sess.OnError(func(err error) {
		closeErr = err
	})
	sess.OnClose(func(code int, reason string) {
		closed = true
		if code != tickwire.CloseNormal && closeErr == nil {
			closeErr = fmt.Errorf("connection closed: code %d %s", code, reason)
		}
	})

	loop := tick.NewLoop()
	loop.Register(sess)

	if err := sess.Connect(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(pingTickInterval)
	defer ticker.Stop()

	finished := false
	for !closed {
		select {
		case <-ctx.Done():
			_ = sess.Close(context.Background())
			loop.TickAll()
			return fmt.Errorf("ping %s: %w", opts.URL, ctx.Err())
		case <-ticker.C:
		}

		loop.TickAll()
		if sendErr != nil {
			_ = sess.Close(ctx)
			loop.TickAll()
			return sendErr
		}
		if !finished && pongs >= opts.Count && echoed {
			finished = true
			if err := sess.Close(ctx); err != nil {
				return err
			}
		}
	}

	if !finished {
		if closeErr != nil {
			return closeErr
		}
		return fmt.Errorf("connection closed after %d of %d pongs", pongs, opts.Count)
	}
	return nil
}
