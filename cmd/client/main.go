package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mbocsi/telemux/client"
	"github.com/mbocsi/telemux/proto"
	"github.com/mbocsi/telemux/server"
)

func main() {
	url := flag.String("url", os.Getenv("TELEMUX_URL"), "Bridge WebSocket URL or tcp://host:port of the TCP gateway (empty to discover over mDNS)")
	name := flag.String("name", "telemux-cli", "Name used as the source of sent commands")
	kinds := flag.String("kinds", "", "Comma separated kinds to print (default all)")
	command := flag.String("command", "", "Send one command as actuator:command[:value] and wait for the ack")
	timeout := flag.Duration("timeout", 5*time.Second, "Connect/discovery and ack timeout")
	verbose := flag.Bool("v", false, "Debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	server.SetupLogger(level, false, os.Stderr)

	if err := run(*url, *name, *kinds, *command, *timeout); err != nil {
		slog.Error("Client stopped", "error", err)
		os.Exit(1)
	}
}

func run(url, name, kinds, command string, timeout time.Duration) error {
	if url == "" {
		service, err := client.DiscoverWebSocketService(timeout)
		if err != nil {
			return err
		}
		url = service.URL()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var transport client.Transport = client.NewWebSocketTransport()
	if strings.HasPrefix(url, "tcp://") {
		transport = client.NewTCPTransport()
	}
	c := client.NewClient(name, transport)
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	err := c.Connect(connectCtx, url)
	cancel()
	if err != nil {
		return err
	}
	defer c.Close()

	if command != "" {
		return sendCommand(ctx, c, command, timeout)
	}

	filter, err := parseKinds(kinds)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	c.HandleAll(func(msg proto.Message) error {
		if len(filter) > 0 && !filter[msg.Kind()] {
			return nil
		}
		return enc.Encode(map[string]interface{}{
			"kind":    msg.Kind(),
			"message": msg,
		})
	})
	return c.Run(ctx)
}

func sendCommand(ctx context.Context, c *client.Client, arg string, timeout time.Duration) error {
	parts := strings.Split(arg, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("command must be actuator:command[:value], got %q", arg)
	}
	var value float64
	if len(parts) == 3 {
		v, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return fmt.Errorf("invalid command value %q: %w", parts[2], err)
		}
		value = v
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go c.Run(ctx)

	ack, err := c.SendCommandAwait(ctx, parts[0], parts[1], value)
	if err != nil {
		return err
	}
	slog.Info("Command acknowledged", "seq", ack.AckedSeq, "ok", ack.OK, "detail", ack.Detail)
	if !ack.OK {
		return fmt.Errorf("command rejected: %s", ack.Detail)
	}
	return nil
}

func parseKinds(s string) (map[proto.Kind]bool, error) {
	filter := make(map[proto.Kind]bool)
	if s == "" {
		return filter, nil
	}
	for _, name := range strings.Split(s, ",") {
		k, err := proto.ParseKind(name)
		if err != nil {
			return nil, err
		}
		filter[k] = true
	}
	return filter, nil
}
