// Package mcpserver exposes the tools.Service operations as MCP tools over
// stdio.
package mcpserver

import (
	"context"
	"io"
	"log"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rileyhilliard/sshman/internal/logger"
	"github.com/rileyhilliard/sshman/internal/tools"
)

// Name is the server name reported during the MCP handshake.
const Name = "sshman"

// New creates an MCP server with every sshman tool registered.
func New(svc *tools.Service, version string, log logger.Logger) *server.MCPServer {
	if log == nil {
		log = logger.Noop()
	}

	s := server.NewMCPServer(
		Name,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	h := &handlers{svc: svc, log: log}
	for _, t := range h.tools() {
		s.AddTool(t.def, t.handle)
	}
	return s
}

// Serve runs the MCP protocol on in/out until ctx is cancelled or in closes.
// Protocol errors are written to errOut; stdout carries only protocol frames.
func Serve(ctx context.Context, s *server.MCPServer, in io.Reader, out, errOut io.Writer) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(log.New(errOut, "sshman: ", log.LstdFlags))
	return stdio.Listen(ctx, in, out)
}

const instructions = `sshman runs commands and moves files on the SSH servers configured for this user.

Start with ssh_list_servers to see the server names and aliases. Servers can be
referred to by name or alias everywhere.

ssh_execute expands command aliases (see ssh_command_alias) and runs in the
server's default directory unless cwd is given. A non-zero exit code is
reported in the result, not as a tool error.

ssh_deploy uploads files to a temporary path and moves them into place, with
backup, owner, permissions and an optional service restart inferred from the
destination path.`
