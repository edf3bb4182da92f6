package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/tools"
	"github.com/rileyhilliard/sshman/internal/ui"
	"github.com/spf13/cobra"
)

// ExecOptions are the flags of the exec command.
type ExecOptions struct {
	Cwd      string
	Sudo     bool
	Password string
}

var execOpts ExecOptions

var execCmd = &cobra.Command{
	Use:   "exec [server] <command...>",
	Short: "Run a command on a server",
	Long: `Run a command on a server. The command may be a command alias from the
active profile or your overlay (see "sshman cmd-alias list").

When only a command is given and stdin is a terminal, a server picker opens.

The remote exit code becomes sshman's exit code.

Examples:
  sshman exec prod "df -h"
  sshman exec prod disk
  sshman exec --sudo prod systemctl restart nginx
  sshman exec --cwd /var/log prod ls`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *tools.Service) error {
			return execCommand(cmd, svc, args, execOpts)
		})
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
	execCmd.Flags().StringVar(&execOpts.Cwd, "cwd", "", "working directory (default: the server's default_dir)")
	execCmd.Flags().BoolVar(&execOpts.Sudo, "sudo", false, "run as root through sudo")
	execCmd.Flags().StringVar(&execOpts.Password, "password", "", "sudo password (default: the server's sudo_password)")
	// Everything after the server name belongs to the remote command.
	execCmd.Flags().SetInterspersed(false)
}

func execCommand(cmd *cobra.Command, svc *tools.Service, args []string, opts ExecOptions) error {
	server, command, err := splitServerArgs(svc, args)
	if err != nil {
		return err
	}

	var res tools.ExecResult
	if opts.Sudo {
		res, err = svc.ExecuteSudo(cmd.Context(), server, command, opts.Password, opts.Cwd)
	} else {
		res, err = svc.Execute(cmd.Context(), server, command, opts.Cwd)
	}
	if err != nil {
		return err
	}

	if err := emit(cmd, res, func(w io.Writer) {
		if res.Alias != "" && verboseFlag {
			fmt.Fprintln(cmd.ErrOrStderr(), ui.MutedStyle().Render(res.Alias+" "+ui.SymbolArrow+" "+res.Command))
		}
		fmt.Fprint(w, res.Stdout)
		fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
	}); err != nil {
		return err
	}

	if res.ExitCode != 0 {
		return errors.NewExitError(res.ExitCode)
	}
	return nil
}

// splitServerArgs separates the server from the command words, opening the
// picker when only a command was given on a terminal.
func splitServerArgs(svc *tools.Service, args []string) (string, string, error) {
	if len(args) >= 2 {
		return args[0], strings.Join(args[1:], " "), nil
	}

	if !ui.IsTerminal(os.Stdin) {
		return "", "", errors.New(errors.ErrConfig,
			"No server given",
			"Usage: sshman exec <server> <command>")
	}

	server, err := pickServer(svc)
	if err != nil {
		return "", "", err
	}
	return server, args[0], nil
}

func pickServer(svc *tools.Service) (string, error) {
	servers, err := svc.ListServers()
	if err != nil {
		return "", err
	}
	choices := make([]ui.ServerChoice, len(servers))
	for i, s := range servers {
		choices[i] = ui.ServerChoice{
			Name:        s.Name,
			Address:     address(s),
			Aliases:     s.Aliases,
			Description: s.Description,
		}
	}

	picked, err := ui.PickServer(choices, os.Stderr, os.Stdin)
	if err != nil {
		return "", err
	}
	if picked == nil {
		return "", errors.New(errors.ErrConfig, "No server selected", "")
	}
	return picked.Name, nil
}
