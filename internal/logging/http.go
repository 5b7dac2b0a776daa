package logging

import (
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RoundTripper logs every HTTP exchange at debug level. Credential headers
// are redacted.
type RoundTripper struct {
	Transport http.RoundTripper
	Log       *logrus.Entry
}

// NewRoundTripper wraps transport (http.DefaultTransport when nil)
func NewRoundTripper(transport http.RoundTripper, log *logrus.Entry) *RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if log == nil {
		log = NewLogger("http")
	}
	return &RoundTripper{Transport: transport, Log: log}
}

// RoundTrip implements http.RoundTripper
func (rt *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	fields := logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
	}
	if rt.Log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		rt.Log.WithFields(fields).WithField("headers", RedactHeaders(req.Header)).Debug("HTTP request")
	}

	start := time.Now()
	resp, err := rt.Transport.RoundTrip(req)
	fields["duration_ms"] = time.Since(start).Milliseconds()
	if err != nil {
		rt.Log.WithFields(fields).WithError(err).Warn("HTTP request failed")
		return resp, err
	}

	fields["status"] = resp.StatusCode
	rt.Log.WithFields(fields).Debug("HTTP response")
	return resp, nil
}

// RedactHeaders copies headers with credential values replaced
func RedactHeaders(headers http.Header) map[string][]string {
	filtered := make(map[string][]string, len(headers))
	for key, values := range headers {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "authorization") ||
			strings.Contains(lower, "token") ||
			strings.Contains(lower, "secret") {
			filtered[key] = []string{"[REDACTED]"}
			continue
		}
		filtered[key] = values
	}
	return filtered
}
