package services

import (
	"context"
)

// StateService exposes the latest-value cache
type StateService interface {
	ListKinds() []KindInfo
	ListLatest() []LatestValue
	GetLatest(kind string) (*LatestValue, error)
}

// ClientService handles viewer client information
type ClientService interface {
	ListClients() ([]ClientInfo, error)
	GetClient(id string) (*ClientInfo, error)
	RenameClient(id, name string) error
}

// TransportService handles transport information
type TransportService interface {
	ListTransports() ([]TransportInfo, error)
	GetTransport(index int) (*TransportInfo, error)
	GetTransportStats() (map[string]interface{}, error)
}

// BridgeService reports pipeline health
type BridgeService interface {
	Stats() BridgeStats
}

// CommandService sends commands to the realtime node
type CommandService interface {
	SendActuatorCommand(ctx context.Context, req CommandRequest) (*CommandReceipt, error)
	SendFrame(source string, frame []byte) error
}

// ServiceContainer holds all service implementations
type ServiceContainer struct {
	State     StateService
	Client    ClientService
	Transport TransportService
	Bridge    BridgeService
	Command   CommandService
}
