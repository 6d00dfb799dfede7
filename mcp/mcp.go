package mcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/mbocsi/telemux/services"
)

const Version = "1.0.0"

type Server interface {
	Run(ctx context.Context) error
}

// MCPServer exposes the bridge tools over stdio. It satisfies the
// coordinator's runner contract so it stops with the bridge.
type MCPServer struct {
	Server *server.MCPServer
	in     io.Reader
	out    io.Writer
}

func NewMCPServer(svcs *services.ServiceContainer) *MCPServer {
	s := &MCPServer{
		Server: server.NewMCPServer("telemux", Version,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
		in:  os.Stdin,
		out: os.Stdout,
	}
	NewTools(svcs).Register(s.Server)
	return s
}

// SetIO replaces stdin/stdout, mainly for tests.
func (s *MCPServer) SetIO(in io.Reader, out io.Writer) {
	s.in = in
	s.out = out
}

func (s *MCPServer) Run(ctx context.Context) error {
	slog.Info("Started stdio MCP server")
	defer func() {
		slog.Info("Shut down stdio MCP server")
	}()

	stdio := server.NewStdioServer(s.Server)
	stdio.SetErrorLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError))

	err := stdio.Listen(ctx, s.in, s.out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return nil
	}
	return fmt.Errorf("mcp stdio: %w", err)
}
