package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hashicorp/mdns"
)

const ServiceType = "_telemux-ws._tcp"

// Advertiser announces the WebSocket endpoint on the local network so
// viewers can find the bridge without configuration.
type Advertiser struct {
	Instance string
	Port     int
	Path     string
}

func NewAdvertiser(port int, path string) *Advertiser {
	host, _ := os.Hostname()
	if host == "" {
		host = "telemux"
	}
	return &Advertiser{Instance: host, Port: port, Path: path}
}

func (a *Advertiser) Run(ctx context.Context) error {
	svc, err := mdns.NewMDNSService(a.Instance, ServiceType, "", "", a.Port, nil, []string{"path=" + a.Path})
	if err != nil {
		return fmt.Errorf("mdns service: %w", err)
	}
	srv, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return fmt.Errorf("mdns server: %w", err)
	}
	slog.Info("Advertising bridge over mDNS", "service", ServiceType, "instance", a.Instance, "port", a.Port, "path", a.Path)

	<-ctx.Done()
	slog.Info("Stopping mDNS advertisement")
	return srv.Shutdown()
}
