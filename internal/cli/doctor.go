package cli

import (
	"fmt"
	"io"

	"github.com/rileyhilliard/sshman/internal/doctor"
	"github.com/rileyhilliard/sshman/internal/errors"
	"github.com/rileyhilliard/sshman/internal/tools"
	"github.com/rileyhilliard/sshman/internal/ui"
	"github.com/spf13/cobra"
)

var doctorOffline bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the sshman setup and server reachability",
	Long: `Run diagnostics over the state home, settings, servers, the active
profile and hooks, then probe every server's SSH port in parallel.

Exits 1 when any check fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(func(svc *tools.Service) error {
			return doctorCommand(cmd, svc, doctorOffline)
		})
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip the server reachability probes")
	rootCmd.AddCommand(doctorCmd)
}

func doctorCommand(cmd *cobra.Command, svc *tools.Service, offline bool) error {
	ctx := cmd.Context()
	results := doctor.RunAll(ctx, svc.StateChecks())

	if !offline {
		// A broken servers.yaml already shows up as a failed state check.
		if checks, err := svc.HostChecks(); err == nil {
			results = append(results, doctor.RunAllParallel(ctx, checks)...)
		}
	}

	if err := emit(cmd, results, func(w io.Writer) {
		renderDoctor(w, results)
	}); err != nil {
		return err
	}

	if doctor.HasFailures(results) {
		return errors.NewExitError(1)
	}
	return nil
}

func renderDoctor(w io.Writer, results []doctor.CheckResult) {
	category := ""
	for _, r := range results {
		if r.Category != category {
			if category != "" {
				fmt.Fprintln(w)
			}
			category = r.Category
			fmt.Fprintln(w, ui.HeaderStyle().Render(category))
		}

		switch r.Status {
		case doctor.StatusPass:
			ui.Success(w, "%s", r.Message)
		case doctor.StatusWarn:
			ui.Warning(w, "%s", r.Message)
		default:
			ui.Failure(w, "%s", r.Message)
		}
		if r.Suggestion != "" && r.Status != doctor.StatusPass {
			fmt.Fprintln(w, "  "+ui.MutedStyle().Render(r.Suggestion))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, doctor.Summary(results))
}
