package services

import (
	"strings"
	"unicode/utf8"

	"github.com/mbocsi/telemux/proto"
	"github.com/mbocsi/telemux/server"
)

// convertClientMetadata converts server.ClientMetadata to ClientInfo
func convertClientMetadata(meta *server.ClientMetadata) ClientInfo {
	meta.Mu.RLock()
	defer meta.Mu.RUnlock()

	transport := ""
	if meta.Transport != nil {
		transport = meta.Transport.Meta().Protocol
	}
	return ClientInfo{
		ID:             meta.Id,
		Name:           meta.Name,
		RemoteAddr:     meta.RemoteAddr,
		Transport:      transport,
		ConnectedAt:    meta.ConnectedAt,
		FramesSent:     meta.FramesSent.Load(),
		FramesReceived: meta.FramesReceived.Load(),
	}
}

// convertTransportMeta converts transport metadata to TransportInfo
func convertTransportMeta(index int, meta server.TransportMetadata) TransportInfo {
	status := "disconnected"
	if meta.Connected {
		status = "connected"
	}

	return TransportInfo{
		Index:       index,
		ID:          meta.ID,
		Name:        meta.Name,
		Type:        meta.Protocol,
		Address:     meta.Address,
		Description: meta.Description,
		Status:      status,
		Connections: len(meta.Clients),
		MaxClients:  meta.MaxClients,
	}
}

func convertMessage(msg proto.Message) LatestValue {
	return LatestValue{Kind: msg.Kind(), Tag: uint8(msg.Kind()), Message: msg}
}

// validateCommand checks the fields the realtime node requires
func validateCommand(req CommandRequest) error {
	if strings.TrimSpace(req.ActuatorID) == "" {
		return ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "actuator_id cannot be empty",
		}
	}
	if strings.TrimSpace(req.Command) == "" {
		return ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "command cannot be empty",
		}
	}
	for _, s := range []string{req.ActuatorID, req.Command, req.Dest} {
		if !utf8.ValidString(s) {
			return ServiceError{
				Code:    ErrCodeInvalidInput,
				Message: "command fields must be valid UTF-8",
			}
		}
	}
	return nil
}
