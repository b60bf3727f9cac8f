package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatsync/pkg/logging"
)

var logCloser io.Closer

var rootCmd = &cobra.Command{
	Use:   "chatsync",
	Short: "Follow and post to a chat conversation from the terminal",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := logging.InitLoggerFromCobra(cmd)
		if err != nil {
			return err
		}
		logCloser = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			_ = logCloser.Close()
		}
	},
	SilenceUsage: true,
}

func main() {
	logging.AddFlags(rootCmd)
	rootCmd.AddCommand(newRunCommand(), newHistoryCommand())
	cobra.CheckErr(rootCmd.Execute())
}
