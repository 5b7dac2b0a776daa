package commands

import (
	"bytes"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/strrl/opencode-sessions/pkg/models"
)

// fakeServer answers the opencode REST routes used by the commands
type fakeServer struct {
	mu      sync.Mutex
	queries []url.Values
	auth    []string
}

func (f *fakeServer) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.queries = append(f.queries, r.URL.Query())
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/global/health":
		_, _ = w.Write([]byte(`{"healthy":true,"version":"1.2.3"}`))
	case "/project":
		_, _ = w.Write([]byte(`[
			{"id":"p1","worktree":"/work/alpha","time":{"updated":300}},
			{"id":"p2","worktree":"/work/beta","time":{"updated":200}},
			{"id":"global","worktree":"","time":{"updated":100}}
		]`))
	case "/session":
		switch r.URL.Query().Get("directory") {
		case "/work/alpha":
			_, _ = w.Write([]byte(`[{"id":"s1","projectID":"p1","directory":"/work/alpha","title":"alpha work","time":{"created":1,"updated":10}}]`))
		case "/work/beta":
			_, _ = w.Write([]byte(`[{"id":"s2","projectID":"p2","directory":"/work/beta","title":"beta work","time":{"created":1,"updated":20}}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	case "/session/s1":
		_, _ = w.Write([]byte(`{"id":"s1","projectID":"p1","directory":"/work/alpha","title":"alpha work","time":{"created":1,"updated":10}}`))
	case "/session/s1/message":
		_, _ = w.Write([]byte(`[
			{"info":{"id":"m1","role":"user","time":{"created":1}},"parts":[{"type":"text","text":"please fix the parser"}]},
			{"info":{"id":"m2","role":"assistant"},"parts":[{"type":"step-start"},{"type":"text","text":"done"}]}
		]`))
	case "/session/s1/message/m1":
		_, _ = w.Write([]byte(`{"info":{"id":"m1","role":"user"},"parts":[{"type":"text","text":"please fix the parser"}]}`))
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

func (f *fakeServer) lastQuery() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

func (f *fakeServer) lastAuth() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.auth[len(f.auth)-1]
}

func setup(t *testing.T) (*httptest.Server, *fakeServer) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	for _, key := range []string{"OPENCODE_SESSIONS_URL", "OPENCODE_SESSIONS_BACKEND", "OPENCODE_SESSIONS_OUTPUT", "OPENCODE_SERVER_PASSWORD", "OPENCODE_SESSIONS_PASSWORD", "OPENCODE_SERVER_USERNAME", "OPENCODE_SESSIONS_USERNAME"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	fake := &fakeServer{}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)
	return srv, fake
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestHealthCommand(t *testing.T) {
	srv, _ := setup(t)

	out, err := run(t, "health", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "healthy (version 1.2.3)")
}

func TestProjectsJSON(t *testing.T) {
	srv, _ := setup(t)

	out, err := run(t, "projects", "--url", srv.URL, "-o", "json")
	require.NoError(t, err)

	var projects []models.Project
	require.NoError(t, json.Unmarshal([]byte(out), &projects))
	require.Len(t, projects, 3)
	assert.Equal(t, "/work/alpha", projects[0].Worktree)
}

func TestProjectsTable(t *testing.T) {
	srv, _ := setup(t)

	out, err := run(t, "projects", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "WORKTREE")
	assert.Contains(t, out, "/work/beta")
}

func TestSessionsPassesFilters(t *testing.T) {
	srv, fake := setup(t)

	out, err := run(t, "sessions", "--url", srv.URL,
		"--directory", "/work/alpha", "--roots", "--search", "fix", "--start", "5", "--limit", "10", "-o", "json")
	require.NoError(t, err)

	q := fake.lastQuery()
	assert.Equal(t, "/work/alpha", q.Get("directory"))
	assert.Equal(t, "true", q.Get("roots"))
	assert.Equal(t, "fix", q.Get("search"))
	assert.Equal(t, "5", q.Get("start"))
	assert.Equal(t, "10", q.Get("limit"))

	var list []models.Session
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "s1", list[0].ID)
}

func TestSessionsChildrenFilter(t *testing.T) {
	srv, fake := setup(t)

	_, err := run(t, "sessions", "--url", srv.URL, "--children")
	require.NoError(t, err)
	assert.Equal(t, "false", fake.lastQuery().Get("roots"))

	_, err = run(t, "sessions", "--url", srv.URL, "--roots", "--children")
	require.Error(t, err)
}

func TestSessionsAllProjects(t *testing.T) {
	srv, _ := setup(t)

	out, err := run(t, "sessions", "--url", srv.URL, "--all-projects", "-o", "json")
	require.NoError(t, err)

	var list []models.Session
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "s2", list[0].ID)
	assert.Equal(t, "s1", list[1].ID)
}

func TestSessionsAllProjectsRejectsPaging(t *testing.T) {
	srv, _ := setup(t)

	_, err := run(t, "sessions", "--url", srv.URL, "--all-projects", "--limit", "3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--all-projects")
}

func TestSessionNotFound(t *testing.T) {
	srv, _ := setup(t)

	_, err := run(t, "session", "missing", "--url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestSessionTable(t *testing.T) {
	srv, _ := setup(t)

	out, err := run(t, "session", "s1", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "alpha work")
	assert.Contains(t, out, "/work/alpha")
}

func TestMessagesTable(t *testing.T) {
	srv, fake := setup(t)

	out, err := run(t, "messages", "s1", "--url", srv.URL, "--limit", "2")
	require.NoError(t, err)
	assert.Equal(t, "2", fake.lastQuery().Get("limit"))
	assert.Contains(t, out, "please fix the parser")
	assert.Contains(t, out, "step-start,text")
}

func TestMessageYAML(t *testing.T) {
	srv, _ := setup(t)

	out, err := run(t, "message", "s1", "m1", "--url", srv.URL, "-o", "yaml")
	require.NoError(t, err)

	var decoded struct {
		Info  map[string]interface{}   `yaml:"info"`
		Parts []map[string]interface{} `yaml:"parts"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "m1", decoded.Info["id"])
	require.Len(t, decoded.Parts, 1)
	assert.Equal(t, "please fix the parser", decoded.Parts[0]["text"])
}

func TestDebugSession(t *testing.T) {
	srv, _ := setup(t)

	out, err := run(t, "debug-session", "s1", "--url", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Debugging session: s1")
	assert.Contains(t, out, "Found 2 messages")
	assert.Contains(t, out, "Message 2 [assistant] m2")
}

func TestEmptyResponseBodies(t *testing.T) {
	setup(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"health", []string{"health"}, "empty response"},
		{"session", []string{"session", "s1"}, "Session not found: s1"},
		{"message", []string{"message", "s1", "m1"}, "Message not found: m1"},
		{"debug-session", []string{"debug-session", "s1"}, "Session not found: s1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() {
				_, err = run(t, append(tt.args, "--url", srv.URL)...)
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPasswordFlag(t *testing.T) {
	srv, fake := setup(t)

	_, err := run(t, "health", "--url", srv.URL, "--password", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("opencode:secret")), fake.lastAuth())

	_, err = run(t, "health", "--url", srv.URL, "--username", "alice", "--password", "secret")
	require.NoError(t, err)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("alice:secret")), fake.lastAuth())
}

func TestConnectionFlagsValidated(t *testing.T) {
	srv, _ := setup(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"session list limit", []string{"--session-list-limit", "0"}, "session_list_limit must be positive"},
		{"request timeout", []string{"--request-timeout", "-1s"}, "request_timeout must be positive"},
		{"server timeout", []string{"--server-timeout", "-1s"}, "server_timeout must be positive"},
		{"port", []string{"--port", "70000"}, "invalid port 70000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"health", "--url", srv.URL}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSessionListLimitFlag(t *testing.T) {
	srv, fake := setup(t)

	_, err := run(t, "sessions", "--url", srv.URL, "--all-projects", "--session-list-limit", "7")
	require.NoError(t, err)
	assert.Equal(t, "7", fake.lastQuery().Get("limit"))
}

func TestInvalidOutput(t *testing.T) {
	srv, _ := setup(t)

	_, err := run(t, "projects", "--url", srv.URL, "-o", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output")
}

func TestConfigFile(t *testing.T) {
	srv, _ := setup(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("url: "+srv.URL+"\noutput: json\n"), 0o644))

	out, err := run(t, "health", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"healthy": true`)
}

func TestSQLiteBackend(t *testing.T) {
	setup(t)

	path := filepath.Join(t.TempDir(), "opencode.db")
	writable, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	for _, stmt := range []string{
		`CREATE TABLE project (id TEXT PRIMARY KEY, worktree TEXT, time_updated INTEGER)`,
		`CREATE TABLE session (id TEXT PRIMARY KEY, project_id TEXT, parent_id TEXT, directory TEXT, title TEXT, time_created INTEGER, time_updated INTEGER)`,
		`INSERT INTO project VALUES ('p1', '/work/alpha', 10)`,
		`INSERT INTO session VALUES ('s1', 'p1', NULL, '/work/alpha', 'from disk', 1, 2)`,
	} {
		_, err = writable.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, writable.Close())

	out, err := run(t, "sessions", "--backend", "sqlite", "--db-path", path, "-o", "json")
	require.NoError(t, err)

	var list []models.Session
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "from disk", list[0].Title)
}

func TestSQLiteBackendMissingDatabase(t *testing.T) {
	setup(t)

	_, err := run(t, "projects", "--backend", "sqlite", "--db-path", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OpenCode database not found")
}
