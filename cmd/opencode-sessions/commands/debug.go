package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strrl/opencode-sessions/internal/sessions"
)

// newDebugCommand creates the debug-session command
func newDebugCommand(a *app) *cobra.Command {
	var directory string

	cmd := &cobra.Command{
		Use:   "debug-session <session-id>",
		Short: "Debug a specific session to see raw data",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSource(cmd, func(ctx context.Context, src sessions.Source) error {
				return runDebugSession(ctx, cmd, src, args[0], directory)
			})
		},
	}

	cmd.Flags().StringVarP(&directory, "directory", "d", "", "require the session to belong to this directory")
	return cmd
}

func runDebugSession(ctx context.Context, cmd *cobra.Command, src sessions.Source, sessionID, directory string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Debugging session: %s\n", sessionID)
	fmt.Fprintln(out, "==========================================")

	info, err := sessions.DebugSessionMessages(ctx, src, sessionID, directory)
	if err != nil {
		return fmt.Errorf("failed to debug session: %w", err)
	}

	fmt.Fprintf(out, "Title: %s\nDirectory: %s\n", info.Session.Title, info.Session.Directory)
	if len(info.Messages) == 0 {
		fmt.Fprintln(out, "No messages found for this session")
		return nil
	}

	fmt.Fprintf(out, "Found %d messages:\n", len(info.Messages))
	for i, msg := range info.Messages {
		fmt.Fprintf(out, "\n--- Message %d ---\n%s\n", i+1, msg)
	}
	return nil
}
