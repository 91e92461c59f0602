package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"

	"chatrelay/internal/config"
	"chatrelay/internal/moderation"
	"chatrelay/internal/protocol"
	"chatrelay/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	addr := flag.String("addr", cfg.Address(), "TCP address to listen on")
	wsAddr := flag.String("ws-addr", cfg.WebSocketAddr, "WebSocket gateway address (empty disables it)")
	flag.Parse()

	log := logs.GetLoggerFromString(cfg.LogLevel)

	censor, err := newCensor(cfg)
	if err != nil {
		return fmt.Errorf("moderation: %w", err)
	}

	srv := server.New(log, server.Options{
		OutboundCapacity: cfg.OutboundCapacity,
		Line: protocol.LineOptions{
			MaxLineLength: cfg.MaxLineLength,
			WriteTimeout:  cfg.WriteTimeout,
			IdleTimeout:   cfg.IdleTimeout,
		},
		EnqueueTimeout:    cfg.EnqueueTimeout,
		FanoutConcurrency: cfg.FanoutConcurrency,
	}, censor)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(ctx, *addr)
	})
	if *wsAddr != "" {
		g.Go(func() error {
			return srv.ListenAndServeWebSocket(ctx, *wsAddr, cfg.AllowedOrigins())
		})
	}
	if cfg.StatsInterval > 0 {
		g.Go(func() error {
			return server.NewReporter(log, srv, cfg.StatsInterval).Run(ctx)
		})
	}
	// Whatever ends first (signal or a failed listener) stops the rest.
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down...")
		srv.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Program stopped cleanly")
	return nil
}

// newCensor returns nil unless CENSORED_WORDS is set.
func newCensor(cfg config.Config) (moderation.Censor, error) {
	replacement, err := cfg.CensorRune()
	if err != nil {
		return nil, err
	}
	mod, err := moderation.New(cfg.Words(), replacement)
	if err != nil || mod == nil {
		return nil, err
	}
	return mod, nil
}
