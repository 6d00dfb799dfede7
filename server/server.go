package server

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mbocsi/telemux/metrics"
	"github.com/mbocsi/telemux/proto"
)

type Options struct {
	RealtimeHost      string           // Destination of command frames
	BroadcastCapacity int              // Per-subscriber queue length
	EgressCapacity    int              // Command frames waiting for the sender
	Codec             proto.Codec      // Decode mode for ingest
	Metrics           *metrics.Metrics // Optional (defaults to a fresh registry)
	Cache             *LatestCache     // Optional
	Broker            *Broker          // Optional (defaults to NewBroker(BroadcastCapacity))
	Egress            *EgressQueue     // Optional (defaults to NewEgressQueue(EgressCapacity))
	Registry          *ClientRegistry  // Optional
}

func (o *Options) defaults() {
	if o.RealtimeHost == "" {
		o.RealtimeHost = "127.0.0.1:5001"
	}
	if o.BroadcastCapacity <= 0 {
		o.BroadcastCapacity = 100
	}
	if o.EgressCapacity <= 0 {
		o.EgressCapacity = 100
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	if o.Cache == nil {
		o.Cache = NewLatestCache()
	}
	if o.Broker == nil {
		o.Broker = NewBroker(o.BroadcastCapacity)
	}
	if o.Egress == nil {
		o.Egress = NewEgressQueue(o.EgressCapacity)
	}
	if o.Registry == nil {
		o.Registry = NewClientRegistry()
	}
}

// SetupLogger installs the process wide slog handler.
func SetupLogger(level slog.Level, json bool, w io.Writer) {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
