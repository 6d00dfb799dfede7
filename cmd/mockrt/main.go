package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbocsi/telemux/server"
	"golang.org/x/sync/errgroup"
)

func main() {
	listen := flag.String("listen", envOr("MOCKRT_LISTEN", "0.0.0.0:5001"), "UDP address to receive commands on")
	backend := flag.String("backend", envOr("BACKEND_HOST", "127.0.0.1:5000"), "Bridge UDP ingest address")
	rate := flag.Duration("rate", 100*time.Millisecond, "SensorBatch interval")
	logLevel := flag.String("log-level", envOr("MOCKRT_LOG_LEVEL", "info"), "Log level")
	flag.Parse()

	level, err := server.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(1)
	}
	server.SetupLogger(level, false, os.Stdout)

	node, err := NewNode(*listen, *backend, *rate)
	if err != nil {
		slog.Error("Failed to start mock realtime node", "error", err)
		os.Exit(1)
	}
	defer node.Close()

	slog.Info("Mock realtime node listening", "addr", node.LocalAddr().String())
	slog.Info("Sending telemetry", "backend", *backend, "rate", *rate)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return node.RunTelemetry(gctx) })
	g.Go(func() error { return node.RunCommands(gctx) })
	if err := g.Wait(); err != nil {
		slog.Error("Mock realtime node stopped", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
