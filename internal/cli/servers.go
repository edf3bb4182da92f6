package cli

import (
	"fmt"
	"io"

	"github.com/rileyhilliard/sshman/internal/tools"
	"github.com/rileyhilliard/sshman/internal/ui"
	"github.com/spf13/cobra"
)

var serversCmd = &cobra.Command{
	Use:     "servers",
	Aliases: []string{"ls"},
	Short:   "List configured servers",
	Long: `List servers from servers.yaml, .env and SSH_SERVER_* environment
variables, with their aliases. Passwords are never shown.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *tools.Service) error {
			return serversCommand(cmd, svc)
		})
	},
}

func init() {
	rootCmd.AddCommand(serversCmd)
}

func serversCommand(cmd *cobra.Command, svc *tools.Service) error {
	servers, err := svc.ListServers()
	if err != nil {
		return err
	}
	return emit(cmd, servers, func(w io.Writer) {
		rows := make([]ui.ServerRow, len(servers))
		for i, s := range servers {
			rows[i] = ui.ServerRow{
				Name:        s.Name,
				Address:     address(s),
				Auth:        s.Auth,
				Aliases:     s.Aliases,
				Description: s.Description,
			}
		}
		fmt.Fprintln(w, ui.RenderServerTable(rows))
	})
}

func address(s tools.ServerInfo) string {
	return fmt.Sprintf("%s@%s:%d", s.User, s.Host, s.Port)
}
