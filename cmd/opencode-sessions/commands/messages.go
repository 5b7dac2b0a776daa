package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/opencode-sessions/internal/dataerr"
	"github.com/strrl/opencode-sessions/internal/sessions"
	"github.com/strrl/opencode-sessions/pkg/models"
)

func newMessagesCommand(a *app) *cobra.Command {
	var (
		directory string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "messages <session-id>",
		Short: "List the messages of a session, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSource(cmd, func(ctx context.Context, src sessions.Source) error {
				messages, err := src.ListMessages(ctx, args[0], models.ListMessagesOptions{
					Directory: directory,
					Limit:     limit,
				})
				if err != nil {
					return fmt.Errorf("failed to fetch messages: %w", err)
				}
				if messages == nil {
					messages = []models.Message{}
				}
				return a.printer(cmd).print(messages, func() string { return messagesTable(messages) })
			})
		},
	}

	cmd.Flags().StringVarP(&directory, "directory", "d", "", "require the session to belong to this directory")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "only the most recent messages")
	return cmd
}

func newMessageCommand(a *app) *cobra.Command {
	var directory string

	cmd := &cobra.Command{
		Use:   "message <session-id> <message-id>",
		Short: "Show one message with its parts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSource(cmd, func(ctx context.Context, src sessions.Source) error {
				message, err := src.GetMessage(ctx, args[0], args[1], models.LookupOptions{Directory: directory})
				if err != nil {
					return fmt.Errorf("failed to fetch message: %w", err)
				}
				if message == nil {
					return dataerr.NotFound("Message not found: %s", args[1])
				}
				return a.printer(cmd).print(message, func() string { return messageTable(message) })
			})
		},
	}

	cmd.Flags().StringVarP(&directory, "directory", "d", "", "require the session to belong to this directory")
	return cmd
}
