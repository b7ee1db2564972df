package diagcmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ryanMQ/internal/config"
	"ryanMQ/internal/rlog"
)

var v = viper.New()

// RootCmd is the ryanmq-diag entry point.
var RootCmd = &cobra.Command{
	Use:   "ryanmq-diag",
	Short: "Inspect and exercise the ryanMQ connection core",
	Long: `ryanmq-diag loads the client's connection-level and per-producer
configuration and can drive one producer against a live broker to
exercise the send pipeline (batching, chunking, compression, acks) end
to end.`,
	PersistentPreRunE: bindFlags,
}

func init() {
	RootCmd.PersistentFlags().String("service-url", "pulsar://localhost:6650", "broker URL (pulsar:// or pulsar+ssl://)")
	RootCmd.PersistentFlags().String("config-path", "", "directory to search for ryanmq.yaml, in addition to the working directory")
	RootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	RootCmd.AddCommand(configCmd)
	RootCmd.AddCommand(sendCmd)
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
		return err
	}
	config.Prepare(v, v.GetString("config-path"))
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		rlog.SetLevel(rlog.LevelDebug)
	case "warn":
		rlog.SetLevel(rlog.LevelWarn)
	case "error":
		rlog.SetLevel(rlog.LevelError)
	default:
		rlog.SetLevel(rlog.LevelInfo)
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
