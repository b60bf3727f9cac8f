package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/chatsync/pkg/persistence/chatstore"
	"github.com/go-go-golems/chatsync/pkg/ui"
)

func newHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print an archived transcript, or the archived conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("archive")
			convID, _ := cmd.Flags().GetString("conversation")
			limit, _ := cmd.Flags().GetInt("limit")
			if path == "" {
				return errors.New("--archive is required")
			}

			archive, err := chatstore.NewSQLiteArchive(path)
			if err != nil {
				return err
			}
			defer func() { _ = archive.Close() }()

			out := cmd.OutOrStdout()
			if convID == "" {
				convs, err := archive.Conversations(cmd.Context())
				if err != nil {
					return err
				}
				for _, c := range convs {
					last := time.UnixMilli(c.LastActivityMs).Format(time.RFC3339)
					_, _ = fmt.Fprintf(out, "%s\t%d messages\tlast archived %s\n", c.ConvID, c.MessageCount, last)
				}
				return nil
			}

			msgs, err := archive.Load(cmd.Context(), convID, limit)
			if err != nil {
				return err
			}
			printer := ui.NewLinePrinter(out, ui.Formatter{})
			for _, m := range msgs {
				printer.Render(m.User, m.Body)
			}
			return nil
		},
	}
	cmd.Flags().String("archive", "", "SQLite archive written by `run --archive`")
	cmd.Flags().String("conversation", "", "Conversation to print; lists conversations when empty")
	cmd.Flags().Int("limit", 0, "Print only the newest N messages (0 for all)")
	return cmd
}
