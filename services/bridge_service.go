package services

import (
	"time"

	"github.com/mbocsi/telemux/server"
)

type BridgeServiceImpl struct {
	coordinator *server.Coordinator
}

func NewBridgeService(c *server.Coordinator) BridgeService {
	return &BridgeServiceImpl{coordinator: c}
}

func (bs *BridgeServiceImpl) Stats() BridgeStats {
	c := bs.coordinator
	stats := BridgeStats{
		Running:        c.Running(),
		StartedAt:      c.StartedAt(),
		Clients:        c.Registry.Len(),
		CachedKinds:    c.Cache.Len(),
		EgressDepth:    c.Egress.Len(),
		EgressCapacity: c.Egress.Cap(),
		StrictDecode:   c.Codec.Strict,
		Broker:         c.Broker.Stats(),
	}
	if stats.Running {
		stats.Uptime = time.Since(stats.StartedAt).Round(time.Second).String()
	}
	return stats
}
