package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/mhai/internal/conversation"
)

func newHistoryCmd() *cobra.Command {
	var (
		flags  clientFlags
		since  uint
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:       "history <chat|diary>",
		Short:     "Print a conversation's messages",
		Long:      "Fetches a surface's messages once and prints them, oldest first.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{conversation.Chat.Name, conversation.Diary.Name},
		RunE: func(cmd *cobra.Command, args []string) error {
			var sinceID *uint
			if cmd.Flags().Changed("since") {
				sinceID = &since
			}
			return runHistory(cmd, args[0], flags, sinceID, asJSON)
		},
	}

	addClientFlags(cmd, &flags)
	cmd.Flags().UintVar(&since, "since", 0, "only messages with an id greater than this")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func runHistory(cmd *cobra.Command, name string, flags clientFlags, since *uint, asJSON bool) error {
	surface, err := conversation.SurfaceByName(name)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	_, c, _, err := signIn(ctx, flags)
	if err != nil {
		return err
	}
	msgs, err := c.List(ctx, surface, since)
	if err != nil {
		return fmt.Errorf("fetch %s history: %w", surface.Name, err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		data, err := json.MarshalIndent(msgs, "", "  ")
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}
	newPrinter(out, false).transcript(msgs)
	return nil
}
