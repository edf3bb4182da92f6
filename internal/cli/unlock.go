package cli

import (
	"io"

	"github.com/rileyhilliard/sshman/internal/tools"
	"github.com/rileyhilliard/sshman/internal/ui"
	"github.com/spf13/cobra"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock <server>",
	Short: "Remove a stuck deploy lock",
	Long: `Deploys hold a lock directory on the server (/tmp/sshman-<server>.lock) so
two sshman processes never deploy to the same server at once. If a deploy
was killed before it could clean up, unlock removes the lock.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *tools.Service) error {
			res, err := svc.Unlock(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(cmd, res, func(w io.Writer) {
				ui.Success(w, "%s", res.Message)
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(unlockCmd)
}
