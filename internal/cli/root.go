package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/ui"
	"github.com/spf13/cobra"
)

// Global flags
var (
	homeFlag    string
	verboseFlag bool
	noColorFlag bool
	jsonFlag    bool
)

var rootCmd = &cobra.Command{
	Use:   "sshman",
	Short: "SSH server manager with an MCP interface",
	Long: `sshman manages a set of named SSH servers: run commands, copy files and
deploy, with command aliases, hooks and profiles layered on top.

Run "sshman serve" to expose the same operations as MCP tools over stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColorFlag || os.Getenv("NO_COLOR") != "" || !ui.IsTerminal(os.Stdout) {
			ui.DisableColors()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&homeFlag, "home", "", "state directory (default $SSHMAN_HOME or ~/.config/sshman)")
	flags.BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging to stderr")
	flags.BoolVar(&noColorFlag, "no-color", false, "disable colored output")
	flags.BoolVar(&jsonFlag, "json", false, "machine-readable JSON output")
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	if code, ok := errors.GetExitCode(err); ok {
		os.Exit(code)
	}

	if jsonFlag {
		_ = WriteJSONFromError(os.Stdout, err)
	} else {
		printError(os.Stderr, err)
	}
	os.Exit(1)
}

func printError(w io.Writer, err error) {
	if isUnknownCommandError(err) {
		name := extractUnknownCommand(err)
		fmt.Fprintf(w, "✗ %s\n\n  Run 'sshman --help' for the list of commands", err)
		if name != "" {
			fmt.Fprintf(w, ", or 'sshman exec %s <command>' to run something on a server", name)
		}
		fmt.Fprintln(w)
		return
	}

	var smErr *errors.Error
	if stderrors.As(err, &smErr) {
		fmt.Fprint(w, err.Error())
		return
	}
	fmt.Fprintf(w, "✗ %s\n", err)
}

func isUnknownCommandError(err error) bool {
	msg := err.Error()
	return strings.HasPrefix(msg, "unknown command") || strings.HasPrefix(msg, "unknown flag")
}

// extractUnknownCommand pulls "foo" out of `unknown command "foo" for "sshman"`.
func extractUnknownCommand(err error) string {
	msg := err.Error()
	start := strings.Index(msg, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(msg[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return msg[start+1 : start+1+end]
}
