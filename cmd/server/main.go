package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mbocsi/telemux/config"
	"github.com/mbocsi/telemux/mcp"
	"github.com/mbocsi/telemux/metrics"
	"github.com/mbocsi/telemux/proto"
	"github.com/mbocsi/telemux/server"
	"github.com/mbocsi/telemux/services"
	"github.com/mbocsi/telemux/web"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Bridge stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, err := server.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	// stdout belongs to the MCP stdio protocol when it is enabled
	logOut := os.Stdout
	if cfg.MCPEnabled {
		logOut = os.Stderr
	}
	server.SetupLogger(level, cfg.LogJSON, logOut)

	m := metrics.New()
	coordinator := server.NewCoordinator(server.Options{
		RealtimeHost:      cfg.RealtimeHost,
		BroadcastCapacity: cfg.BroadcastCapacity,
		EgressCapacity:    cfg.EgressCapacity,
		Codec:             proto.Codec{Strict: cfg.StrictDecode},
		Metrics:           m,
	})

	// Create UDP ingest transport
	udp := server.NewUDPTransport(cfg.UDPListen, coordinator.Codec)
	udp.SetName("Realtime telemetry ingest")
	udp.SetDescription("Receives encoded frames from the realtime node")

	// Create WebSocket bridge
	ws := server.NewWSTransport(cfg.HTTPAddr + cfg.WSPath)
	ws.SetName("Viewer bridge")
	ws.SetDescription("Relays telemetry to browsers and forwards their commands")
	ws.SetMaxClients(cfg.MaxClients)
	ws.SetTimeouts(cfg.WSWriteTimeout, cfg.WSIdleTimeout, cfg.WSPingInterval)

	coordinator.RegisterTransport(udp)
	coordinator.RegisterTransport(ws)

	// Optional gateway for native clients, disabled when no address is set
	var tcp *server.TCPTransport
	if cfg.TCPListen != "" {
		tcp = server.NewTCPTransport(cfg.TCPListen)
		tcp.SetName("Native gateway")
		tcp.SetDescription("Length prefixed frames over TCP for clients without WebSocket")
		tcp.SetMaxClients(cfg.MaxClients)
		tcp.SetTimeouts(cfg.WSWriteTimeout, cfg.WSIdleTimeout)
		coordinator.RegisterTransport(tcp)
	}

	endpoints := web.Endpoints{WSPath: cfg.WSPath, WS: ws, Metrics: m.Handler()}
	if cfg.SSEEnabled {
		sse := server.NewSSETransport(cfg.HTTPAddr + "/api/events")
		sse.SetName("Event stream")
		sse.SetDescription("Streams telemetry as JSON Server-Sent Events")
		sse.SetMaxClients(cfg.MaxClients)
		sse.SetKeepalive(cfg.SSEKeepalive)
		coordinator.RegisterTransport(sse)
		endpoints.Events = sse
	}

	// Bind failures are fatal before anything is served
	if err := udp.Listen(); err != nil {
		return err
	}
	if tcp != nil {
		if err := tcp.Listen(); err != nil {
			return err
		}
	}
	if err := coordinator.Sender.Listen(); err != nil {
		return err
	}

	svcs := services.NewServiceContainer(coordinator)
	if cfg.MCPEnabled {
		coordinator.RegisterRunner(mcp.NewMCPServer(svcs))
	}
	if cfg.MDNSEnabled {
		coordinator.RegisterRunner(server.NewAdvertiser(cfg.HTTPPort(), cfg.WSPath))
	}

	api := web.NewAPI(svcs, endpoints)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Routes()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting telemux bridge",
		"udp_listen", cfg.UDPListen,
		"realtime_host", cfg.RealtimeHost,
		"http_addr", cfg.HTTPAddr,
		"ws_path", cfg.WSPath,
		"tcp_listen", cfg.TCPListen,
		"sse_enabled", cfg.SSEEnabled,
		"strict_decode", cfg.StrictDecode,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coordinator.Start(gctx)
	})
	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		slog.Info("Shutting down HTTP server", "timeout", cfg.ShutdownTimeout)
		// Hijacked WebSocket connections are closed by the coordinator
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("Bridge stopped")
	return nil
}
