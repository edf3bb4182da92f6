package cli

import (
	"io"

	"github.com/rileyhilliard/sshman/internal/tools"
	"github.com/rileyhilliard/sshman/internal/ui"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <server> <local> <remote>",
	Short: "Upload a file over SFTP",
	Example: `  sshman upload prod ./app.conf /etc/app/app.conf
  sshman upload prod ~/notes.txt ~/notes.txt`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *tools.Service) error {
			res, err := svc.Upload(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return emitTransfer(cmd, res, res.Local, res.Server+":"+res.Remote)
		})
	},
}

var downloadCmd = &cobra.Command{
	Use:     "download <server> <remote> <local>",
	Short:   "Download a file over SFTP",
	Example: `  sshman download prod /var/log/app.log ./app.log`,
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *tools.Service) error {
			res, err := svc.Download(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return emitTransfer(cmd, res, res.Server+":"+res.Remote, res.Local)
		})
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd, downloadCmd)
}

func emitTransfer(cmd *cobra.Command, res tools.TransferResult, from, to string) error {
	return emit(cmd, res, func(w io.Writer) {
		ui.Success(w, "%s %s %s", from, ui.SymbolArrow, to)
	})
}
