package cli

import (
	"fmt"
	"io"

	"github.com/rileyhilliard/sshman/internal/tools"
	"github.com/rileyhilliard/sshman/internal/ui"
	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test <server>",
	Short: "Check that a server is reachable and accepts the configured login",
	Long: `Probe the SSH port, open a fresh session with the configured
credentials and print the remote system line (uname -a).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *tools.Service) error {
			report, err := svc.TestConnection(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(cmd, report, func(w io.Writer) {
				ui.Success(w, "Connected to %s", report.Server)
				ui.KeyValue(w,
					[2]string{"address", report.Address},
					[2]string{"tcp", fmt.Sprintf("%dms", report.TCPLatencyMs)},
					[2]string{"login", fmt.Sprintf("%dms", report.ConnectMs)},
					[2]string{"system", report.System},
				)
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(testCmd)
}
