// DCA load driver MCP server.
// Exposes the driver's status API as tools over MCP stdio transport.
package main

import (
	"fmt"
	"os"

	mcptools "github.com/gateway-fm/dcaload/internal/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	dcaloadURL := os.Getenv("DCALOAD_URL")
	if dcaloadURL == "" {
		dcaloadURL = "http://localhost:13001"
	}

	s := server.NewMCPServer(
		"dcaload",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	client := mcptools.NewClient(dcaloadURL)
	mcptools.RegisterTools(s, client)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}
