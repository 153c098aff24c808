package protocol

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/datazip-inc/filetap/constants"
	"github.com/datazip-inc/filetap/drivers/abstract"
	"github.com/datazip-inc/filetap/utils"
	"github.com/datazip-inc/filetap/utils/logger"
)

var (
	configPath string
	logLevel   string
	logFile    string
	timeout    int64 // timeout in seconds

	commands  = []*cobra.Command{}
	connector *abstract.AbstractDriver
	output    = NewMessageWriter(os.Stdout)
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "filetap",
	Short: "root command",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// flags win over the environment
		if logLevel != "" {
			viper.Set(constants.LogLevel, logLevel)
		}
		if logFile != "" {
			viper.Set(constants.LogFile, logFile)
		}
		logger.Init()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}

		if ok := utils.IsValidSubcommand(commands, args[0]); !ok {
			return fmt.Errorf("'%s' is an invalid command. Use 'filetap --help' to display usage guide", args[0])
		}

		return nil
	},
}

// loadConfig decodes --config into the connector's config and fills the
// credential defaults read from the environment at startup.
func loadConfig() error {
	if configPath == "" {
		return fmt.Errorf("--config not passed")
	}
	config := connector.GetConfigRef()
	if err := utils.UnmarshalFile(configPath, config); err != nil {
		return err
	}
	if resolver, ok := config.(abstract.EnvResolver); ok {
		resolver.ResolveEnv(viper.GetString)
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// RegisterDriver runs the command line against driver and exits non-zero on failure.
func RegisterDriver(driver abstract.DriverInterface) {
	connector = abstract.NewAbstractDriver(driver)
	RootCmd.AddCommand(commands...)

	ctx, cancel := signalContext()
	err := RootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		connector.Close()
		logger.Fatal(err)
	}
}

func init() {
	commands = append(commands, specCmd, checkCmd, discoverCmd, syncCmd)
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "", "", "(Required) Config for connector")
	RootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "", "", "(Optional) Log level: debug, info, warn or error")
	RootCmd.PersistentFlags().StringVarP(&logFile, "log-file", "", "", "(Optional) Also write logs to this file, rotated")
	RootCmd.PersistentFlags().Int64VarP(&timeout, "timeout", "", -1, "(Optional) Timeout to override default timeouts (in seconds)")

	// ambient defaults are resolved here once and passed down explicitly
	for _, key := range []string{constants.LogLevel, constants.LogFile, constants.AWSAccessKeyID, constants.AWSSecretAccessKey, constants.AWSRegion} {
		_ = viper.BindEnv(key)
	}

	// Disable Cobra CLI's built-in usage and error handling
	RootCmd.SilenceUsage = true
	RootCmd.SilenceErrors = true
}
