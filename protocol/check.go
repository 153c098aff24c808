package protocol

import (
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "check command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		defer connector.Close()
		// a failed check is reported in the status message, not the exit code
		return output.EmitNow(connector.Check(cmd.Context()))
	},
}
