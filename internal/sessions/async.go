package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/strrl/opencode-sessions/pkg/models"
)

const (
	listTimeout    = 30 * time.Second
	messageTimeout = 15 * time.Second
)

// AsyncQueryResult wraps fetch results with their error
type AsyncQueryResult struct {
	Projects []models.Project
	Sessions []models.Session
	Messages []string
	Error    error
}

// runAsync runs fetch on its own goroutine with a timeout and delivers
// the single result on the returned channel.
func runAsync(ctx context.Context, timeout time.Duration, fetch func(ctx context.Context) AsyncQueryResult) <-chan AsyncQueryResult {
	resultChan := make(chan AsyncQueryResult, 1)

	go func() {
		defer close(resultChan)

		queryCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result := fetch(queryCtx)
		select {
		case resultChan <- result:
		case <-ctx.Done():
		}
	}()

	return resultChan
}

// await waits for a result or cancellation
func await(ctx context.Context, resultChan <-chan AsyncQueryResult) (AsyncQueryResult, error) {
	select {
	case result, ok := <-resultChan:
		if !ok {
			return AsyncQueryResult{}, ctx.Err()
		}
		return result, result.Error
	case <-ctx.Done():
		return AsyncQueryResult{}, ctx.Err()
	}
}

// FetchProjectsAsync lists projects without blocking past ctx
func FetchProjectsAsync(ctx context.Context, src Source) ([]models.Project, error) {
	result, err := await(ctx, runAsync(ctx, listTimeout, func(ctx context.Context) AsyncQueryResult {
		projects, err := src.ListProjects(ctx)
		return AsyncQueryResult{Projects: projects, Error: err}
	}))
	if err != nil {
		return nil, err
	}
	return result.Projects, nil
}

// FetchSessionsForProjectAsync lists the sessions of one project directory
func FetchSessionsForProjectAsync(ctx context.Context, src Source, opts models.ListSessionsOptions) ([]models.Session, error) {
	result, err := await(ctx, runAsync(ctx, listTimeout, func(ctx context.Context) AsyncQueryResult {
		sessions, err := src.ListSessions(ctx, opts)
		return AsyncQueryResult{Sessions: sessions, Error: err}
	}))
	if err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

// FetchRecentMessagesForSessionAsync loads a session's messages as preview lines
func FetchRecentMessagesForSessionAsync(ctx context.Context, src Source, session models.Session) ([]string, error) {
	result, err := await(ctx, runAsync(ctx, messageTimeout, func(ctx context.Context) AsyncQueryResult {
		messages, err := src.ListMessages(ctx, session.ID, models.ListMessagesOptions{Directory: session.Directory})
		if err != nil {
			return AsyncQueryResult{Error: fmt.Errorf("failed to load messages: %w", err)}
		}
		return AsyncQueryResult{Messages: PreviewLines(messages)}
	}))
	if err != nil {
		return nil, err
	}
	return result.Messages, nil
}
