package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/sshman/internal/tools"
	"github.com/rileyhilliard/sshman/internal/ui"
	"github.com/spf13/cobra"
)

var hooksYes bool

var hooksCmd = &cobra.Command{
	Use:   "hooks",
	Short: "Manage lifecycle hooks",
	Long: `Hooks are local shell actions that run around remote operations:
pre-deploy, post-deploy, on-error, pre-connect, post-connect and the
bench hooks of the frappe profile. Definitions come from the active profile
and from hooks.yaml, which wins on conflicts.`,
}

var hooksListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List hooks and whether they are enabled",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return hooksAction(cmd, "list", "")
	},
}

var hooksEnableCmd = &cobra.Command{
	Use:   "enable <hook>",
	Short: "Enable a hook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return hooksAction(cmd, "enable", args[0])
	},
}

var hooksDisableCmd = &cobra.Command{
	Use:   "disable <hook>",
	Short: "Disable a hook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !hooksYes && !jsonFlag && ui.IsTerminal(os.Stdin) && !confirm(fmt.Sprintf("Disable hook '%s'?", args[0])) {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
			return nil
		}
		return hooksAction(cmd, "disable", args[0])
	},
}

var hooksStatusCmd = &cobra.Command{
	Use:   "status <hook>",
	Short: "Show a hook's definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return hooksAction(cmd, "status", args[0])
	},
}

var hooksInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the hooks directory and seed hooks.yaml",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *tools.Service) error {
			if err := svc.InitHooks(); err != nil {
				return err
			}
			return emit(cmd, map[string]string{"dir": svc.Paths().HooksDir()}, func(w io.Writer) {
				ui.Success(w, "Hooks initialized in %s", svc.Paths().HooksDir())
			})
		})
	},
}

func init() {
	hooksDisableCmd.Flags().BoolVarP(&hooksYes, "yes", "y", false, "don't ask for confirmation")
	hooksCmd.AddCommand(hooksListCmd, hooksEnableCmd, hooksDisableCmd, hooksStatusCmd, hooksInitCmd)
	rootCmd.AddCommand(hooksCmd)
}

func hooksAction(cmd *cobra.Command, action, name string) error {
	return withService(func(svc *tools.Service) error {
		res, err := svc.ManageHooks(action, name)
		if err != nil {
			return err
		}
		return emit(cmd, res, func(w io.Writer) {
			switch {
			case res.Hook != nil:
				renderHook(w, res.Hook)
			case action == "list":
				for _, h := range res.Hooks {
					fmt.Fprintf(w, "%s %-14s %s\n", ui.Toggle(h.Enabled), h.Name, ui.MutedStyle().Render(hookLabel(h.Description, h.ActionCount)))
				}
			default:
				ui.Success(w, "%s", res.Message)
			}
		})
	})
}

func renderHook(w io.Writer, h *tools.HookDetail) {
	fmt.Fprintln(w, ui.Toggle(h.Enabled)+" "+ui.HeaderStyle().Render(h.Name))
	ui.KeyValue(w, [2]string{"description", h.Description})
	for _, a := range h.Actions {
		name := a.Name
		if name == "" {
			name = a.Type
		}
		fmt.Fprintf(w, "  %s %s: %s\n", ui.SymbolArrow, name, a.Command)
	}
}

func hookLabel(description string, actions int) string {
	noun := "actions"
	if actions == 1 {
		noun = "action"
	}
	return strings.TrimSpace(fmt.Sprintf("%s (%d %s)", description, actions, noun))
}

// confirm asks a yes/no question; a cancelled form counts as no.
func confirm(title string) bool {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Value(&ok),
		),
	)
	if form.Run() != nil {
		return false
	}
	return ok
}
