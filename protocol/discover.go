package protocol

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/utils"
	"github.com/datazip-inc/filetap/utils/logger"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "discover command",
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		err := connector.Setup(cmd.Context())
		if err != nil {
			return err
		}
		defer connector.Close()

		// build discover ctx
		discoverTimeout := utils.Ternary(timeout == -1, constants.DefaultDiscoverTimeout, time.Duration(timeout)*time.Second)
		discoverCtx, cancel := context.WithTimeout(cmd.Context(), discoverTimeout)
		defer cancel()

		message, err := connector.Discover(discoverCtx)
		if err != nil {
			return err
		}
		logger.Infof("Discovered stream %s with %d fields", message.Stream, message.Schema.Len())
		return output.EmitNow(message)
	},
}
