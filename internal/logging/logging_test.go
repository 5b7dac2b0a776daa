package logging

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerIsCachedPerComponent(t *testing.T) {
	a := NewLogger("store")
	b := NewLogger("store")
	c := NewLogger("http")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "store", a.Data["component"])
}

func TestSetupWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.log")
	noStderr := false

	cleanup, err := Setup(Options{Level: "debug", File: path, Format: "json", Stderr: &noStderr})
	require.NoError(t, err)

	NewLogger("test").WithField("session", "s1").Info("hello")
	cleanup()
	SetOutput(io.Discard)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"session":"s1"`)
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	_, err := Setup(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestRoundTripperRedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		SetOutput(bytes.NewBuffer(nil))
		SetLevel(logrus.InfoLevel)
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewRoundTripper(nil, NewLogger("http-test"))}
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/global/health", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Basic c2VjcmV0")

	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	out := buf.String()
	assert.Contains(t, out, "HTTP request")
	assert.Contains(t, out, "HTTP response")
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "c2VjcmV0")
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Accept", "application/json")
	h.Set("X-Api-Token", "abc")

	got := RedactHeaders(h)
	assert.Equal(t, []string{"application/json"}, got["Accept"])
	assert.Equal(t, []string{"[REDACTED]"}, got["X-Api-Token"])
}
