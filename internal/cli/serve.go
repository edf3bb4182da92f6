package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rileyhilliard/sshman/internal/mcpserver"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Serve the sshman tools over the Model Context Protocol on stdin/stdout.

Point your MCP client at this command, e.g.:

  {"command": "sshman", "args": ["serve"]}

Logs go to stderr; stdout carries only protocol messages.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serveCommand(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(ctx context.Context) error {
	svc, log, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.InitHooks(); err != nil {
		log.Warn("couldn't initialize hooks: %s", err)
	}

	srv := mcpserver.New(svc, version, log)
	log.Info("sshman %s serving MCP on stdio (home %s)", version, svc.Paths().Home)
	err = mcpserver.Serve(ctx, srv, os.Stdin, os.Stdout, os.Stderr)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
