package services

import (
	"github.com/mbocsi/telemux/server"
)

// NewServiceContainer builds every service over one coordinator. The ack
// tracker is registered as a coordinator runner so it follows the bridge
// lifecycle.
func NewServiceContainer(c *server.Coordinator) *ServiceContainer {
	tracker := NewAckTracker(c, CommandSource)
	c.RegisterRunner(tracker)

	return &ServiceContainer{
		State:     NewStateService(c.Cache),
		Client:    NewClientService(c.Registry),
		Transport: NewTransportService(c),
		Bridge:    NewBridgeService(c),
		Command:   NewCommandService(c, tracker),
	}
}
