package client

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/mbocsi/telemux/server"
)

// DiscoveredService represents a discovered telemux bridge
type DiscoveredService struct {
	ServiceName string
	Address     string
	Port        int
	Path        string
	TXTRecords  []string
}

// URL returns the WebSocket endpoint of the bridge
func (s *DiscoveredService) URL() string {
	path := s.Path
	if path == "" {
		path = "/ws"
	}
	return "ws://" + net.JoinHostPort(s.Address, strconv.Itoa(s.Port)) + path
}

// fromEntry converts an mDNS answer. The WebSocket path travels in a
// "path=" TXT record.
func fromEntry(entry *mdns.ServiceEntry) (*DiscoveredService, error) {
	var address string
	if entry.AddrV4 != nil {
		address = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		address = entry.AddrV6.String()
	} else {
		return nil, fmt.Errorf("no valid address found for service %s", entry.Name)
	}

	service := &DiscoveredService{
		ServiceName: entry.Name,
		Address:     address,
		Port:        entry.Port,
		TXTRecords:  entry.InfoFields,
	}
	for _, field := range entry.InfoFields {
		if path, ok := strings.CutPrefix(field, "path="); ok {
			service.Path = path
		}
	}
	return service, nil
}

// DiscoverWebSocketService discovers the first available bridge
func DiscoverWebSocketService(timeout time.Duration) (*DiscoveredService, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	entriesCh := make(chan *mdns.ServiceEntry, 4)
	params := mdns.DefaultParams(server.ServiceType)
	params.Entries = entriesCh
	params.Timeout = timeout
	params.DisableIPv6 = true

	// Start discovery in background
	go func() {
		defer close(entriesCh)
		if err := mdns.Query(params); err != nil {
			slog.Warn("mDNS query failed", "error", err)
		}
	}()

	for entry := range entriesCh {
		service, err := fromEntry(entry)
		if err != nil {
			slog.Debug("Ignoring mDNS answer", "error", err)
			continue
		}
		// drain so the query goroutine can finish
		go func() {
			for range entriesCh {
			}
		}()

		slog.Info("Discovered telemux bridge",
			"service_name", service.ServiceName,
			"address", service.Address,
			"port", service.Port,
			"path", service.Path,
		)
		return service, nil
	}
	return nil, fmt.Errorf("mDNS discovery timeout for %s", server.ServiceType)
}
