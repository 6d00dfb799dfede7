package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mbocsi/telemux/services"
)

// Tools are the MCP tool handlers. They read bridge state and inject
// commands through the service layer, the same way the HTTP API does.
type Tools struct {
	services *services.ServiceContainer
}

func NewTools(svcs *services.ServiceContainer) *Tools {
	return &Tools{services: svcs}
}

// Register adds every tool to s
func (t *Tools) Register(s *server.MCPServer) {
	t.registerStateTools(s)
	t.registerSystemTools(s)
	t.registerCommandTools(s)
}

func (t *Tools) registerStateTools(s *server.MCPServer) {
	listKindsTool := mcp.NewTool("list_kinds",
		mcp.WithDescription("List every telemetry/command message kind and whether a latest value is cached"),
	)
	s.AddTool(listKindsTool, t.handleListKinds)

	getLatestTool := mcp.NewTool("get_latest",
		mcp.WithDescription("Get the most recent message of a kind received from the realtime node"),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Message kind name (e.g. SensorBatch, SystemStatus) or its numeric tag"),
		),
	)
	s.AddTool(getLatestTool, t.handleGetLatest)
}

func (t *Tools) registerSystemTools(s *server.MCPServer) {
	listClientsTool := mcp.NewTool("list_clients",
		mcp.WithDescription("List the WebSocket viewers currently connected to the bridge"),
	)
	s.AddTool(listClientsTool, t.handleListClients)

	statsTool := mcp.NewTool("get_bridge_stats",
		mcp.WithDescription("Get bridge health: bus drops per subscriber, egress queue depth, uptime"),
		mcp.WithBoolean("include_transports",
			mcp.Description("Include transport information"),
		),
	)
	s.AddTool(statsTool, t.handleGetBridgeStats)
}

func (t *Tools) registerCommandTools(s *server.MCPServer) {
	sendCommandTool := mcp.NewTool("send_actuator_command",
		mcp.WithDescription("Encode an ActuatorCommand and send it to the realtime node"),
		mcp.WithString("actuator_id",
			mcp.Required(),
			mcp.Description("Target actuator"),
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Command verb understood by the actuator"),
		),
		mcp.WithNumber("value",
			mcp.Description("Primary command value"),
		),
		mcp.WithArray("args",
			mcp.Description("Additional numeric arguments"),
			mcp.Items(map[string]any{"type": "number"}),
		),
		mcp.WithString("dest",
			mcp.Description("Destination node, empty for the default realtime node"),
		),
		mcp.WithBoolean("wait_for_ack",
			mcp.Description("Wait for the realtime node to acknowledge the command"),
		),
		mcp.WithNumber("timeout",
			mcp.Description("Ack timeout in seconds"),
		),
	)
	s.AddTool(sendCommandTool, t.handleSendActuatorCommand)
}

func (t *Tools) handleListKinds(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kinds := t.services.State.ListKinds()
	return jsonResult(map[string]interface{}{
		"kinds": kinds,
		"count": len(kinds),
	})
}

func (t *Tools) handleGetLatest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := request.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError("kind is required and must be a string"), nil
	}

	value, err := t.services.State.GetLatest(kind)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(value)
}

func (t *Tools) handleListClients(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clients, err := t.services.Client.ListClients()
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]interface{}{
		"clients": clients,
		"count":   len(clients),
	})
}

func (t *Tools) handleGetBridgeStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := map[string]interface{}{
		"timestamp": time.Now().Unix(),
		"bridge":    t.services.Bridge.Stats(),
	}

	if request.GetBool("include_transports", true) {
		if transports, err := t.services.Transport.ListTransports(); err == nil {
			status["transports"] = map[string]interface{}{
				"count": len(transports),
				"list":  transports,
			}
		}
	}
	return jsonResult(status)
}

func (t *Tools) handleSendActuatorCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	actuatorID, err := request.RequireString("actuator_id")
	if err != nil {
		return mcp.NewToolResultError("actuator_id is required and must be a string"), nil
	}
	command, err := request.RequireString("command")
	if err != nil {
		return mcp.NewToolResultError("command is required and must be a string"), nil
	}
	args, err := numberArgs(request.GetRawArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	receipt, err := t.services.Command.SendActuatorCommand(ctx, services.CommandRequest{
		ActuatorID: actuatorID,
		Command:    command,
		Value:      request.GetFloat("value", 0),
		Args:       args,
		Dest:       request.GetString("dest", ""),
		WaitForAck: request.GetBool("wait_for_ack", false),
		Timeout:    time.Duration(request.GetFloat("timeout", 5) * float64(time.Second)),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(receipt)
}

// numberArgs pulls the optional "args" array out of the raw tool arguments
func numberArgs(raw any) ([]float64, error) {
	argMap, ok := raw.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	value, exists := argMap["args"]
	if !exists || value == nil {
		return nil, nil
	}
	list, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("args must be an array of numbers")
	}

	args := make([]float64, 0, len(list))
	for i, v := range list {
		n, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("args[%d] must be a number", i)
		}
		args = append(args, n)
	}
	return args, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	resultBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(resultBytes)), nil
}

func toolError(err error) *mcp.CallToolResult {
	var serviceErr services.ServiceError
	if errors.As(err, &serviceErr) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", serviceErr.Code, serviceErr.Error()))
	}
	return mcp.NewToolResultError(err.Error())
}
