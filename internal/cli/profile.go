package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/tools"
	"github.com/rileyhilliard/sshman/internal/ui"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage the active profile",
	Long: `A profile bundles command aliases and hooks for a kind of server
(default, docker, frappe, minimal, nodejs, or your own JSON file in
profiles/). The active profile is read on every call, so switching takes
effect immediately, including for a running "sshman serve".`,
}

var profileListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List available profiles",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return profileAction(cmd, "list", "")
	},
}

var profileSwitchCmd = &cobra.Command{
	Use:   "switch [name]",
	Short: "Switch the active profile",
	Long:  "Switch the active profile. Without a name, a picker opens on a terminal.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return profileAction(cmd, "switch", args[0])
		}
		return withService(func(svc *tools.Service) error {
			name, err := selectProfile(svc)
			if err != nil {
				return err
			}
			return profileActionWith(cmd, svc, "switch", name)
		})
	},
}

var profileCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the active profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return profileAction(cmd, "current", "")
	},
}

func init() {
	profileCmd.AddCommand(profileListCmd, profileSwitchCmd, profileCurrentCmd)
	rootCmd.AddCommand(profileCmd)
}

func profileAction(cmd *cobra.Command, action, name string) error {
	return withService(func(svc *tools.Service) error {
		return profileActionWith(cmd, svc, action, name)
	})
}

func profileActionWith(cmd *cobra.Command, svc *tools.Service, action, name string) error {
	res, err := svc.ManageProfile(action, name)
	if err != nil {
		return err
	}
	return emit(cmd, res, func(w io.Writer) {
		switch {
		case res.Profile != nil:
			p := res.Profile
			fmt.Fprintln(w, ui.HeaderStyle().Render(p.Name))
			ui.KeyValue(w,
				[2]string{"description", p.Description},
				[2]string{"aliases", fmt.Sprint(len(p.CommandAliases))},
				[2]string{"hooks", fmt.Sprint(len(p.Hooks))},
			)
		case action == "list":
			for _, p := range res.Profiles {
				name := p.Name
				if !p.BuiltIn {
					name += " (custom)"
				}
				fmt.Fprintf(w, "%s %-18s %s\n", ui.Toggle(p.Active), name,
					ui.MutedStyle().Render(fmt.Sprintf("%s, %d aliases, %d hooks", p.Description, p.AliasCount, p.HookCount)))
			}
		default:
			ui.Success(w, "%s", res.Message)
		}
	})
}

// selectProfile opens a picker over the available profiles.
func selectProfile(svc *tools.Service) (string, error) {
	if !ui.IsTerminal(os.Stdin) {
		return "", errors.New(errors.ErrConfig,
			"No profile given",
			"Usage: sshman profile switch <name>")
	}

	var options []huh.Option[string]
	var selected string
	for _, p := range svc.Profiles() {
		options = append(options, huh.NewOption(p.Name+"  "+p.Description, p.Name))
		if p.Active {
			selected = p.Name
		}
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Switch to profile").
				Options(options...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return "", errors.New(errors.ErrConfig, "No profile selected", "")
	}
	return selected, nil
}
