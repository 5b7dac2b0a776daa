package sessions

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/strrl/opencode-sessions/internal/dataerr"
	"github.com/strrl/opencode-sessions/pkg/models"
)

// fakeSource serves canned data and records ListSessions calls
type fakeSource struct {
	mu sync.Mutex

	projects []models.Project
	// sessions keyed by directory
	sessions map[string][]models.Session
	messages map[string][]models.Message
	// listErr keyed by directory
	listErr   map[string]error
	healthErr error

	calls  []models.ListSessionsOptions
	closed int
}

func (f *fakeSource) Health(ctx context.Context) (*models.Health, error) {
	if f.healthErr != nil {
		return nil, f.healthErr
	}
	return &models.Health{Healthy: true}, nil
}

func (f *fakeSource) ListProjects(ctx context.Context) ([]models.Project, error) {
	return f.projects, nil
}

func (f *fakeSource) ListSessions(ctx context.Context, opts models.ListSessionsOptions) ([]models.Session, error) {
	f.mu.Lock()
	f.calls = append(f.calls, opts)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, dataerr.Wrap(err, "GET /session failed: %v", err)
	}
	if err := f.listErr[opts.Directory]; err != nil {
		return nil, err
	}
	return f.sessions[opts.Directory], nil
}

func (f *fakeSource) GetSession(ctx context.Context, sessionID string, opts models.LookupOptions) (*models.Session, error) {
	for _, list := range f.sessions {
		for _, s := range list {
			if s.ID == sessionID && (opts.Directory == "" || opts.Directory == s.Directory) {
				s := s
				return &s, nil
			}
		}
	}
	return nil, dataerr.NotFound("Session not found: %s", sessionID)
}

func (f *fakeSource) ListMessages(ctx context.Context, sessionID string, opts models.ListMessagesOptions) ([]models.Message, error) {
	if _, err := f.GetSession(ctx, sessionID, models.LookupOptions{Directory: opts.Directory}); err != nil {
		return nil, err
	}
	return f.messages[sessionID], nil
}

func (f *fakeSource) GetMessage(ctx context.Context, sessionID, messageID string, opts models.LookupOptions) (*models.Message, error) {
	for _, m := range f.messages[sessionID] {
		if m.ID() == messageID {
			m := m
			return &m, nil
		}
	}
	return nil, dataerr.NotFound("Message not found: %s", messageID)
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func session(id, directory string, updated int64) models.Session {
	s := models.Session{ID: id, ProjectID: "p", Directory: directory, Title: "title " + id}
	s.Time.Updated = updated
	return s
}

func message(info string, parts ...string) models.Message {
	m := models.Message{Info: json.RawMessage(info), Parts: []json.RawMessage{}}
	for _, p := range parts {
		m.Parts = append(m.Parts, json.RawMessage(p))
	}
	return m
}
