package services

import (
	"github.com/mbocsi/telemux/server"
)

// ClientServiceImpl implements ClientService
type ClientServiceImpl struct {
	registry *server.ClientRegistry
}

// NewClientService creates a new client service
func NewClientService(registry *server.ClientRegistry) ClientService {
	return &ClientServiceImpl{
		registry: registry,
	}
}

// ListClients returns all connected viewers
func (cs *ClientServiceImpl) ListClients() ([]ClientInfo, error) {
	clients := cs.registry.List()
	result := make([]ClientInfo, 0, len(clients))

	for _, client := range clients {
		result = append(result, convertClientMetadata(client.Meta()))
	}

	return result, nil
}

// GetClient returns a specific viewer by ID
func (cs *ClientServiceImpl) GetClient(id string) (*ClientInfo, error) {
	client, exists := cs.registry.Get(id)
	if !exists {
		return nil, ServiceError{
			Code:    ErrCodeNotFound,
			Message: "Client not found: " + id,
		}
	}

	info := convertClientMetadata(client.Meta())
	return &info, nil
}

// RenameClient sets a display name on a viewer
func (cs *ClientServiceImpl) RenameClient(id, name string) error {
	client, exists := cs.registry.Get(id)
	if !exists {
		return ServiceError{
			Code:    ErrCodeNotFound,
			Message: "Client not found: " + id,
		}
	}

	if name == "" {
		return ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Client name cannot be empty",
		}
	}

	meta := client.Meta()
	meta.Mu.Lock()
	meta.Name = name
	meta.Mu.Unlock()

	return nil
}
