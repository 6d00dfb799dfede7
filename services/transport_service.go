package services

import (
	"github.com/mbocsi/telemux/server"
)

// TransportServiceImpl implements TransportService
type TransportServiceImpl struct {
	coordinator *server.Coordinator
}

// NewTransportService creates a new transport service
func NewTransportService(c *server.Coordinator) TransportService {
	return &TransportServiceImpl{
		coordinator: c,
	}
}

// ListTransports returns all transport information, egress included
func (ts *TransportServiceImpl) ListTransports() ([]TransportInfo, error) {
	metas := ts.coordinator.TransportsMeta()
	result := make([]TransportInfo, 0, len(metas))

	for i, meta := range metas {
		result = append(result, convertTransportMeta(i, meta))
	}

	return result, nil
}

// GetTransport returns a specific transport by index
func (ts *TransportServiceImpl) GetTransport(index int) (*TransportInfo, error) {
	metas := ts.coordinator.TransportsMeta()
	if index < 0 || index >= len(metas) {
		return nil, ServiceError{
			Code:    ErrCodeNotFound,
			Message: "Transport index out of range",
		}
	}

	info := convertTransportMeta(index, metas[index])
	return &info, nil
}

// GetTransportStats returns aggregate transport statistics
func (ts *TransportServiceImpl) GetTransportStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	metas := ts.coordinator.TransportsMeta()

	connectedTransports := 0
	totalConnections := 0
	byProtocol := make(map[string]int)
	for _, meta := range metas {
		if meta.Connected {
			connectedTransports++
		}
		totalConnections += len(meta.Clients)
		byProtocol[meta.Protocol] += len(meta.Clients)
	}

	stats["total_transports"] = len(metas)
	stats["connected_transports"] = connectedTransports
	stats["total_connections"] = totalConnections
	stats["connections_by_protocol"] = byProtocol

	return stats, nil
}
