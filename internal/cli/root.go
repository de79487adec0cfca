package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions 所有子命令共享的全局参数
type RootOptions struct {
	ConfigPath string
}

// NewRootCommand 创建 eventlogger 根命令
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "eventlogger",
		Short: "Game server telemetry event recorder",
		Long: `Records game server events into a relational statistics store.

Each event is written with its attributes in a single transaction.
A tick-driven heartbeat keeps the session alive and reconnects when the
store connection drops.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default: ./configs/eventlogger.yaml)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSchemaCommand())
	cmd.AddCommand(NewReplayCommand())
	cmd.AddCommand(NewTailCommand())
	cmd.AddCommand(NewBenchCommand())

	return cmd
}
