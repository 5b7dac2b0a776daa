// Package store reads OpenCode sessions straight from its SQLite database.
//
// The database is always opened read-only. Rows are reshaped into the same
// JSON views the OpenCode HTTP API serves, so callers can switch between the
// two backends without noticing.
package store

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/strrl/opencode-sessions/internal/dataerr"
	"github.com/strrl/opencode-sessions/internal/db"
	"github.com/strrl/opencode-sessions/internal/logging"
	"github.com/strrl/opencode-sessions/pkg/models"
)

const sessionColumns = "id, project_id, parent_id, directory, title, time_created, time_updated"

// Options configures Open
type Options struct {
	Engine db.Engine
	Logger *logrus.Entry
}

// Store is a read-only view of an OpenCode database
type Store struct {
	db     *sql.DB
	path   string
	engine db.Engine
	log    *logrus.Entry

	closeOnce sync.Once
	closeErr  error
}

// Open opens the database at path read-only
func Open(path string, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = logging.NewLogger("store")
	}
	engine := opts.Engine
	if engine == "" {
		engine = db.EngineSQLite
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, dataerr.New("OpenCode database not found: %s", path)
		}
		return nil, dataerr.Wrap(err, "failed to access OpenCode database %s: %v", path, err)
	}

	database, err := db.OpenReadOnly(path, engine)
	if err != nil {
		log.WithError(err).WithField("path", path).Error("Failed to open database")
		return nil, dataerr.Wrap(err, "failed to open OpenCode database %s: %v", path, err)
	}
	log.WithFields(logrus.Fields{"path": path, "engine": engine}).Info("Connected to database")

	return &Store{db: database, path: path, engine: engine, log: log}, nil
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close releases the connection. Safe to call more than once.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// Health pings the database
func (s *Store) Health(ctx context.Context) (*models.Health, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, dataerr.Wrap(err, "database health check failed: %v", err)
	}
	return &models.Health{Healthy: true}, nil
}

// ListProjects returns all projects, most recently updated first
func (s *Store) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worktree, time_updated
		FROM project
		ORDER BY time_updated DESC, id ASC
	`)
	if err != nil {
		return nil, s.queryError("ListProjects", err)
	}
	defer func() { _ = rows.Close() }()

	projects := []models.Project{}
	for rows.Next() {
		var project models.Project
		var worktree sql.NullString
		var updated sql.NullInt64
		if err := rows.Scan(&project.ID, &worktree, &updated); err != nil {
			return nil, s.queryError("ListProjects", err)
		}
		project.Worktree = worktree.String
		project.Time.Updated = updated.Int64
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryError("ListProjects", err)
	}
	return projects, nil
}

// ListSessions returns sessions matching opts, most recently updated first
func (s *Store) ListSessions(ctx context.Context, opts models.ListSessionsOptions) ([]models.Session, error) {
	query, args := s.sessionsQuery(opts)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.queryError("ListSessions", err)
	}
	defer func() { _ = rows.Close() }()

	sessions := []models.Session{}
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, s.queryError("ListSessions", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryError("ListSessions", err)
	}
	return sessions, nil
}

// sessionsQuery builds the filtered, paginated session listing
func (s *Store) sessionsQuery(opts models.ListSessionsOptions) (string, []interface{}) {
	var where []string
	var args []interface{}

	if opts.Directory != "" {
		where = append(where, "directory = ?")
		args = append(args, opts.Directory)
	}
	if opts.Roots != nil {
		if *opts.Roots {
			where = append(where, "parent_id IS NULL")
		} else {
			where = append(where, "parent_id IS NOT NULL")
		}
	}
	if opts.Search != "" {
		where = append(where, `LOWER(title) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(opts.Search))+"%")
	}

	query := "SELECT " + sessionColumns + " FROM session"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY time_updated DESC, id ASC"

	switch {
	case opts.Limit > 0 && opts.Start > 0:
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Start)
	case opts.Limit > 0:
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	case opts.Start > 0:
		query += s.offsetOnlyClause()
		args = append(args, opts.Start)
	}

	return query, args
}

// offsetOnlyClause skips rows without bounding the result.
// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
func (s *Store) offsetOnlyClause() string {
	if s.engine == db.EngineDuckDB {
		return " OFFSET ?"
	}
	return " LIMIT -1 OFFSET ?"
}

// GetSession returns one session, optionally scoped to a directory
func (s *Store) GetSession(ctx context.Context, sessionID string, opts models.LookupOptions) (*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM session WHERE id = ?"
	args := []interface{}{sessionID}
	if opts.Directory != "" {
		query += " AND directory = ?"
		args = append(args, opts.Directory)
	}

	session, err := scanSession(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dataerr.NotFound("Session not found: %s", sessionID)
	}
	if err != nil {
		return nil, s.queryError("GetSession", err)
	}
	return &session, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (models.Session, error) {
	var session models.Session
	var projectID, parentID, directory, title sql.NullString
	var created, updated sql.NullInt64

	if err := row.Scan(&session.ID, &projectID, &parentID, &directory, &title, &created, &updated); err != nil {
		return models.Session{}, err
	}

	session.ProjectID = projectID.String
	if parentID.Valid {
		parent := parentID.String
		session.ParentID = &parent
	}
	session.Directory = directory.String
	session.Title = title.String
	session.Time.Created = created.Int64
	session.Time.Updated = updated.Int64
	return session, nil
}

func (s *Store) queryError(op string, err error) error {
	s.log.WithError(err).WithField("op", op).Error("Query failed")
	return dataerr.Wrap(err, "%s query failed: %v", op, err)
}

// escapeLike escapes LIKE wildcards so search terms match literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
