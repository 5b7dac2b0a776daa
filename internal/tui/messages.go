package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/strrl/opencode-sessions/internal/sessions"
	"github.com/strrl/opencode-sessions/pkg/models"
)

// Message types for async operations
type (
	// ProjectsLoadedMsg contains loaded projects
	ProjectsLoadedMsg struct {
		Projects []models.Project
		Error    error
	}

	// SessionsLoadedMsg contains the sessions of one project
	SessionsLoadedMsg struct {
		RequestID string
		Project   models.Project
		Sessions  []models.Session
		Error     error
	}

	// MessagesLoadedMsg contains preview lines for one session
	MessagesLoadedMsg struct {
		RequestID string
		SessionID string
		Messages  []string
		Error     error
	}
)

// loadProjectsCmd loads projects asynchronously
func loadProjectsCmd(ctx context.Context, src sessions.Source) tea.Cmd {
	return func() tea.Msg {
		projects, err := sessions.FetchProjectsAsync(ctx, src)
		return ProjectsLoadedMsg{
			Projects: projects,
			Error:    err,
		}
	}
}

// loadSessionsCmd loads sessions for a project asynchronously
func loadSessionsCmd(ctx context.Context, src sessions.Source, requestID string, project models.Project, limit int) tea.Cmd {
	return func() tea.Msg {
		list, err := sessions.FetchSessionsForProjectAsync(ctx, src, models.ListSessionsOptions{
			Directory: project.Worktree,
			Limit:     limit,
		})
		return SessionsLoadedMsg{
			RequestID: requestID,
			Project:   project,
			Sessions:  list,
			Error:     err,
		}
	}
}

// loadMessagesCmd loads messages for a session asynchronously
func loadMessagesCmd(ctx context.Context, src sessions.Source, requestID string, session models.Session) tea.Cmd {
	return func() tea.Msg {
		messages, err := sessions.FetchRecentMessagesForSessionAsync(ctx, src, session)
		return MessagesLoadedMsg{
			RequestID: requestID,
			SessionID: session.ID,
			Messages:  messages,
			Error:     err,
		}
	}
}
