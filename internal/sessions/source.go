// Package sessions ties the OpenCode data backends together: the Source
// interface they share, cross-project listing, message previews and
// resuming a session in opencode.
package sessions

import (
	"context"

	"github.com/strrl/opencode-sessions/internal/httpapi"
	"github.com/strrl/opencode-sessions/internal/store"
	"github.com/strrl/opencode-sessions/pkg/models"
)

// Source is read access to OpenCode projects, sessions and messages.
// Lookups that find nothing fail with a dataerr 404.
type Source interface {
	Health(ctx context.Context) (*models.Health, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	ListSessions(ctx context.Context, opts models.ListSessionsOptions) ([]models.Session, error)
	GetSession(ctx context.Context, sessionID string, opts models.LookupOptions) (*models.Session, error)
	ListMessages(ctx context.Context, sessionID string, opts models.ListMessagesOptions) ([]models.Message, error)
	GetMessage(ctx context.Context, sessionID, messageID string, opts models.LookupOptions) (*models.Message, error)
	Close() error
}

var (
	_ Source = (*httpapi.Client)(nil)
	_ Source = (*store.Store)(nil)
)
