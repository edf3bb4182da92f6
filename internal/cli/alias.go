package cli

import (
	"fmt"
	"io"

	"github.com/rileyhilliard/sshman/internal/tools"
	"github.com/rileyhilliard/sshman/internal/ui"
	"github.com/spf13/cobra"
)

var aliasCmd = &cobra.Command{
	Use:   "alias",
	Short: "Manage server aliases",
	Long: `Server aliases are alternative names for configured servers, stored in
server-aliases.yaml. Any command that takes a server accepts an alias.`,
}

var aliasAddCmd = &cobra.Command{
	Use:     "add <alias> <server>",
	Short:   "Point an alias at a server",
	Example: "  sshman alias add live prod",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return aliasAction(cmd, "add", args[0], args[1])
	},
}

var aliasRemoveCmd = &cobra.Command{
	Use:     "remove <alias>",
	Aliases: []string{"rm"},
	Short:   "Remove a server alias",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return aliasAction(cmd, "remove", args[0], "")
	},
}

var aliasListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List server aliases",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return aliasAction(cmd, "list", "", "")
	},
}

var cmdAliasCmd = &cobra.Command{
	Use:   "cmd-alias",
	Short: "Manage command aliases",
	Long: `Command aliases are short names for commands, e.g. "disk" for "df -h".
The active profile supplies a base set; aliases you add are stored in
command-aliases.yaml and take precedence. Removing an alias you overrode
restores the profile's command.`,
}

var cmdAliasAddCmd = &cobra.Command{
	Use:     "add <alias> <command>",
	Short:   "Add or override a command alias",
	Example: `  sshman cmd-alias add logs "journalctl -u app -n 100"`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdAliasAction(cmd, "add", args[0], args[1])
	},
}

var cmdAliasRemoveCmd = &cobra.Command{
	Use:     "remove <alias>",
	Aliases: []string{"rm"},
	Short:   "Remove a command alias override",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdAliasAction(cmd, "remove", args[0], "")
	},
}

var cmdAliasListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List command aliases",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdAliasAction(cmd, "list", "", "")
	},
}

var cmdAliasSuggestCmd = &cobra.Command{
	Use:     "suggest <term>",
	Short:   "Find aliases whose name or command contains term",
	Example: "  sshman cmd-alias suggest docker",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmdAliasAction(cmd, "suggest", "", args[0])
	},
}

func init() {
	aliasCmd.AddCommand(aliasAddCmd, aliasRemoveCmd, aliasListCmd)
	cmdAliasCmd.AddCommand(cmdAliasAddCmd, cmdAliasRemoveCmd, cmdAliasListCmd, cmdAliasSuggestCmd)
	rootCmd.AddCommand(aliasCmd, cmdAliasCmd)
}

func aliasAction(cmd *cobra.Command, action, name, server string) error {
	return withService(func(svc *tools.Service) error {
		res, err := svc.ManageServerAlias(action, name, server)
		if err != nil {
			return err
		}
		return emit(cmd, res, func(w io.Writer) {
			if action != "list" || len(res.Aliases) == 0 {
				ui.Success(w, "%s", res.Message)
				return
			}
			rows := make([][]string, len(res.Aliases))
			for i, a := range res.Aliases {
				rows[i] = []string{a.Alias, a.Server}
			}
			titles := []string{"ALIAS", "SERVER"}
			fmt.Fprintln(w, ui.RenderSimpleTable(ui.AutoColumns(titles, rows), rows))
		})
	})
}

func cmdAliasAction(cmd *cobra.Command, action, name, command string) error {
	return withService(func(svc *tools.Service) error {
		res, err := svc.ManageCommandAlias(action, name, command)
		if err != nil {
			return err
		}
		return emit(cmd, res, func(w io.Writer) {
			if len(res.Aliases) == 0 {
				ui.Success(w, "%s", res.Message)
				return
			}
			rows := make([][]string, len(res.Aliases))
			for i, a := range res.Aliases {
				rows[i] = []string{a.Alias, a.Command, aliasSource(a.IsFromProfile, a.IsCustom)}
			}
			titles := []string{"ALIAS", "COMMAND", "SOURCE"}
			fmt.Fprintln(w, ui.RenderSimpleTable(ui.AutoColumns(titles, rows), rows))
		})
	})
}

func aliasSource(fromProfile, custom bool) string {
	switch {
	case fromProfile && custom:
		return "override"
	case custom:
		return "custom"
	default:
		return "profile"
	}
}
