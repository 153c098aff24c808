package protocol

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/datazip-inc/filetap/utils/logger"
)

// syncCmd represents the read command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "sync command, emits the stream schema followed by its records",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		// setup connector first
		err := connector.Setup(cmd.Context())
		if err != nil {
			return err
		}
		defer connector.Close()

		started := time.Now()
		records, err := connector.Read(cmd.Context(), output.Emit)
		// whatever was read before a failure is still delivered
		if ferr := output.Flush(); ferr != nil && err == nil {
			err = fmt.Errorf("failed to flush messages: %w", ferr)
		}
		if err != nil {
			return fmt.Errorf("error occurred while reading records: %w", err)
		}
		logger.Infof("Sync completed in %s, total records read: %d", time.Since(started).Round(time.Millisecond), records)
		return nil
	},
}
