package cli

import (
	"io"

	"github.com/rileyhilliard/sshman/internal/tools"
	"github.com/spf13/cobra"
)

// withService opens the service for the duration of fn.
func withService(fn func(svc *tools.Service) error) error {
	svc, _, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(svc)
}

// emit writes data as a JSON envelope under --json, otherwise calls human.
func emit(cmd *cobra.Command, data any, human func(w io.Writer)) error {
	if jsonFlag {
		return WriteJSONSuccess(cmd.OutOrStdout(), data)
	}
	human(cmd.OutOrStdout())
	return nil
}
