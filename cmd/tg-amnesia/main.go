package main

import (
	"os"

	"github.com/spf13/cobra"

	"tg-amnesia/internal/crash"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tg-amnesia",
		Short:         "Telegram bot that records chat history and forgets it on command",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to configuration file")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newResetCmd(), newStatusCmd())
	return root
}

func main() {
	// log the stack of any panic that reaches main
	defer crash.RecoverWithStackAndExit("main")

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
