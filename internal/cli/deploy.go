package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/rileyhilliard/sshman/internal/deploy"
	"github.com/rileyhilliard/sshman/internal/tools"
	"github.com/rileyhilliard/sshman/internal/ui"
	"github.com/spf13/cobra"
)

// DeployFlags are the flags of the deploy command.
type DeployFlags struct {
	Owner        string
	Perms        string
	NoBackup     bool
	Restart      string
	Sudo         bool
	SudoPassword string
	DryRun       bool
}

var deployFlags DeployFlags

var deployCmd = &cobra.Command{
	Use:   "deploy <server> <local:remote>...",
	Short: "Deploy files with backup, ownership, permissions and restart",
	Long: `Deploy uploads each file to a temporary path, backs up the existing
destination, moves the upload into place and applies ownership, permissions
and a service restart. Defaults are inferred from the destination path:

  /etc/nginx/...        root:root 644, reloads nginx
  /var/www/...          www-data:www-data 644
  /usr/local/bin/...    755
  /etc/systemd/system/  daemon-reload

Flags override the inferred values.`,
	Example: `  sshman deploy prod ./nginx.conf:/etc/nginx/sites-enabled/app.conf
  sshman deploy prod dist/index.html:/var/www/html/index.html --no-backup
  sshman deploy prod ./tool:/usr/local/bin/tool --dry-run`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *tools.Service) error {
			return deployCommand(cmd, svc, args[0], args[1:], deployFlags)
		})
	},
}

func init() {
	rootCmd.AddCommand(deployCmd)
	f := deployCmd.Flags()
	f.StringVar(&deployFlags.Owner, "owner", "", "owner as user or user:group")
	f.StringVar(&deployFlags.Perms, "perms", "", "octal permissions, e.g. 644")
	f.BoolVar(&deployFlags.NoBackup, "no-backup", false, "skip the backup of existing files")
	f.StringVar(&deployFlags.Restart, "restart", "", "service name or command to run after deploying")
	f.BoolVar(&deployFlags.Sudo, "sudo", false, "force (or with --sudo=false, forbid) sudo for the move")
	f.StringVar(&deployFlags.SudoPassword, "sudo-password", "", "sudo password (default: the server's sudo_password)")
	f.BoolVar(&deployFlags.DryRun, "dry-run", false, "print the steps without connecting")
}

func deployCommand(cmd *cobra.Command, svc *tools.Service, server string, pairs []string, flags DeployFlags) error {
	files := make([]deploy.FilePair, 0, len(pairs))
	for _, arg := range pairs {
		fp, err := tools.ParseFilePair(arg)
		if err != nil {
			return err
		}
		files = append(files, fp)
	}

	opts := deploy.Options{
		Owner:        flags.Owner,
		Permissions:  flags.Perms,
		Restart:      flags.Restart,
		SudoPassword: flags.SudoPassword,
	}
	if flags.NoBackup {
		off := false
		opts.Backup = &off
	}
	if cmd.Flags().Changed("sudo") {
		sudo := flags.Sudo
		opts.Sudo = &sudo
	}

	if flags.DryRun {
		plans, err := svc.Plan(files, opts)
		if err != nil {
			return err
		}
		return emit(cmd, plans, func(w io.Writer) {
			renderPlans(w, files, plans)
		})
	}

	res, err := svc.Deploy(cmd.Context(), server, files, opts)
	if err != nil && len(res.Files) == 0 {
		return err
	}
	if emitErr := emit(cmd, res, func(w io.Writer) {
		for _, line := range res.Lines {
			fmt.Fprintln(w, colorLine(line))
		}
	}); emitErr != nil {
		return emitErr
	}
	return err
}

func renderPlans(w io.Writer, files []deploy.FilePair, plans []deploy.Strategy) {
	for i, plan := range plans {
		fmt.Fprintln(w, ui.HeaderStyle().Render(files[i].Local+" "+ui.SymbolArrow+" "+plan.RemotePath))
		ui.KeyValue(w,
			[2]string{"owner", plan.Owner},
			[2]string{"perms", plan.Permissions},
			[2]string{"sudo", fmt.Sprint(plan.Sudo)},
		)
		for _, step := range plan.Steps {
			fmt.Fprintf(w, "  %s %-8s %s\n", ui.SymbolPending, step.Type, ui.MutedStyle().Render(step.Command))
		}
	}
}

// colorLine styles a report line by its leading symbol.
func colorLine(line string) string {
	trimmed := strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(trimmed, ui.SymbolSuccess):
		return ui.SuccessStyle().Render(line)
	case strings.HasPrefix(trimmed, ui.SymbolFail):
		return ui.ErrorStyle().Render(line)
	case strings.HasPrefix(trimmed, ui.SymbolWarning):
		return ui.WarningStyle().Render(line)
	}
	return line
}
