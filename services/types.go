package services

import (
	"time"

	"github.com/mbocsi/telemux/proto"
	"github.com/mbocsi/telemux/server"
)

// ClientInfo represents a connected viewer for the service layer
type ClientInfo struct {
	ID             string    `json:"id"`
	Name           string    `json:"name,omitempty"`
	RemoteAddr     string    `json:"remote_addr"`
	Transport      string    `json:"transport"`
	ConnectedAt    time.Time `json:"connected_at"`
	FramesSent     uint64    `json:"frames_sent"`
	FramesReceived uint64    `json:"frames_received"`
}

// KindInfo describes one message kind and whether a value is cached for it
type KindInfo struct {
	Tag    uint8  `json:"tag"`
	Name   string `json:"name"`
	Cached bool   `json:"cached"`
}

// LatestValue is a cached message rendered for JSON consumers
type LatestValue struct {
	Kind    proto.Kind    `json:"kind"`
	Tag     uint8         `json:"tag"`
	Message proto.Message `json:"message"`
}

// TransportInfo represents transport connection information
type TransportInfo struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	MaxClients  int    `json:"max_clients,omitempty"`
}

// BridgeStats summarizes the pipeline
type BridgeStats struct {
	Running        bool               `json:"running"`
	StartedAt      time.Time          `json:"started_at"`
	Uptime         string             `json:"uptime"`
	Clients        int                `json:"clients"`
	CachedKinds    int                `json:"cached_kinds"`
	EgressDepth    int                `json:"egress_depth"`
	EgressCapacity int                `json:"egress_capacity"`
	StrictDecode   bool               `json:"strict_decode"`
	Broker         server.BrokerStats `json:"broker"`
}

// CommandRequest is an actuator command submitted through the API or MCP
type CommandRequest struct {
	ActuatorID string        `json:"actuator_id"`
	Command    string        `json:"command"`
	Value      float64       `json:"value,omitempty"`
	Args       []float64     `json:"args,omitempty"`
	Dest       string        `json:"dest,omitempty"`
	WaitForAck bool          `json:"wait_for_ack,omitempty"`
	Timeout    time.Duration `json:"-"`
}

// CommandReceipt reports what was queued and, when requested, the ack
type CommandReceipt struct {
	Seq    uint64     `json:"seq"`
	Source string     `json:"source"`
	Bytes  int        `json:"bytes"`
	Ack    *proto.Ack `json:"ack,omitempty"`
}

// ServiceError represents structured service layer errors
type ServiceError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

func (e ServiceError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e ServiceError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeUnavailable  = "UNAVAILABLE"
	ErrCodeInternal     = "INTERNAL_ERROR"
)
