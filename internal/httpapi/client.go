// Package httpapi talks to the OpenCode REST API, spawning a local server
// when no URL is configured.
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/strrl/opencode-sessions/internal/bootstrap"
	"github.com/strrl/opencode-sessions/internal/dataerr"
	"github.com/strrl/opencode-sessions/internal/logging"
	"github.com/strrl/opencode-sessions/pkg/models"
)

const (
	// DefaultUsername is the Basic-Auth user opencode serve expects
	DefaultUsername = "opencode"
	// DefaultRequestTimeout bounds a single request
	DefaultRequestTimeout = 30 * time.Second
)

// Options configures New
type Options struct {
	// URL of a running server. Empty spawns one with Server.
	URL            string
	Username       string
	Password       string
	RequestTimeout time.Duration
	Server         bootstrap.Options
	Logger         *logrus.Entry
	// HTTPClient overrides the default logging client
	HTTPClient *http.Client
}

// Client is an OpenCode REST API client
type Client struct {
	baseURL string
	headers http.Header
	http    *http.Client
	server  *bootstrap.Server
	log     *logrus.Entry

	closeOnce sync.Once
	closeErr  error
}

// New connects to opts.URL, or starts a local server and connects to it
func New(ctx context.Context, opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = logging.NewLogger("httpapi")
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	var server *bootstrap.Server
	baseURL := strings.TrimRight(opts.URL, "/")
	if baseURL == "" {
		serverOpts := opts.Server
		if serverOpts.Logger == nil {
			serverOpts.Logger = logging.NewLogger("bootstrap")
		}
		srv, err := bootstrap.Start(ctx, serverOpts)
		if err != nil {
			return nil, err
		}
		server = srv
		baseURL = strings.TrimRight(srv.URL, "/")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: logging.NewRoundTripper(http.DefaultTransport, log),
		}
	}

	headers := http.Header{}
	headers.Set("Accept", "application/json")
	if opts.Password != "" {
		username := opts.Username
		if username == "" {
			username = DefaultUsername
		}
		headers.Set("Authorization", basicAuth(username, opts.Password))
	}

	log.WithFields(logrus.Fields{
		"url":     baseURL,
		"spawned": server != nil,
	}).Debug("OpenCode API client ready")

	return &Client{
		baseURL: baseURL,
		headers: headers,
		http:    httpClient,
		server:  server,
		log:     log,
	}, nil
}

func basicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// BaseURL returns the API root without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Spawned reports whether the client owns a local server
func (c *Client) Spawned() bool {
	return c.server != nil
}

// Close stops the spawned server, if any. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.server != nil {
			c.closeErr = c.server.Stop()
		}
	})
	return c.closeErr
}

// Health calls GET /global/health
func (c *Client) Health(ctx context.Context) (*models.Health, error) {
	var health models.Health
	found, err := c.getJSON(ctx, "/global/health", nil, &health)
	if err != nil || !found {
		return nil, err
	}
	return &health, nil
}

// ListProjects calls GET /project
func (c *Client) ListProjects(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if _, err := c.getJSON(ctx, "/project", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// ListSessions calls GET /session
func (c *Client) ListSessions(ctx context.Context, opts models.ListSessionsOptions) ([]models.Session, error) {
	query := url.Values{}
	setString(query, "directory", opts.Directory)
	if opts.Roots != nil {
		query.Set("roots", strconv.FormatBool(*opts.Roots))
	}
	setInt(query, "start", opts.Start)
	setString(query, "search", opts.Search)
	setInt(query, "limit", opts.Limit)

	var sessions []models.Session
	if _, err := c.getJSON(ctx, "/session", query, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession calls GET /session/{id}
func (c *Client) GetSession(ctx context.Context, sessionID string, opts models.LookupOptions) (*models.Session, error) {
	query := url.Values{}
	setString(query, "directory", opts.Directory)

	var session models.Session
	found, err := c.getJSON(ctx, "/session/"+url.PathEscape(sessionID), query, &session)
	if err != nil || !found {
		return nil, err
	}
	return &session, nil
}

// ListMessages calls GET /session/{id}/message
func (c *Client) ListMessages(ctx context.Context, sessionID string, opts models.ListMessagesOptions) ([]models.Message, error) {
	query := url.Values{}
	setString(query, "directory", opts.Directory)
	setInt(query, "limit", opts.Limit)

	var messages []models.Message
	if _, err := c.getJSON(ctx, "/session/"+url.PathEscape(sessionID)+"/message", query, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// GetMessage calls GET /session/{id}/message/{messageID}
func (c *Client) GetMessage(ctx context.Context, sessionID, messageID string, opts models.LookupOptions) (*models.Message, error) {
	query := url.Values{}
	setString(query, "directory", opts.Directory)

	path := "/session/" + url.PathEscape(sessionID) + "/message/" + url.PathEscape(messageID)
	var msg models.Message
	found, err := c.getJSON(ctx, path, query, &msg)
	if err != nil || !found {
		return nil, err
	}
	return &msg, nil
}

// getJSON performs a GET and decodes the body into out.
// It reports false when the body was empty.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) (bool, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false, dataerr.Wrap(err, "GET %s failed: %v", path, err)
	}
	for key, values := range c.headers {
		req.Header[key] = values
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, dataerr.Wrap(err, "GET %s failed: %v", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, dataerr.Wrap(err, "GET %s failed: %v", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := fmt.Sprintf("GET %s failed with HTTP %d", path, resp.StatusCode)
		if len(body) > 0 {
			message += ": " + string(body)
		}
		return false, &dataerr.Error{Message: message, StatusCode: resp.StatusCode}
	}

	if len(body) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, dataerr.Wrap(err, "GET %s returned invalid JSON: %v", path, err)
	}
	return true, nil
}

func setString(query url.Values, key, value string) {
	if value != "" {
		query.Set(key, value)
	}
}

func setInt(query url.Values, key string, value int) {
	if value > 0 {
		query.Set(key, strconv.Itoa(value))
	}
}
