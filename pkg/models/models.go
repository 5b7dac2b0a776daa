package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// DefaultSessionListLimit is the page size used when listing sessions per project
const DefaultSessionListLimit = 5000

// Project is a working-directory scoped grouping of sessions
type Project struct {
	ID       string      `json:"id" yaml:"id"`
	Worktree string      `json:"worktree" yaml:"worktree"`
	VCS      string      `json:"vcs,omitempty" yaml:"vcs,omitempty"`
	Time     ProjectTime `json:"time" yaml:"time"`
}

// ProjectTime holds project timestamps in unix milliseconds
type ProjectTime struct {
	Created int64 `json:"created,omitempty" yaml:"created,omitempty"`
	Updated int64 `json:"updated,omitempty" yaml:"updated,omitempty"`
}

// Session represents an OpenCode session
type Session struct {
	ID        string      `json:"id" yaml:"id"`
	ProjectID string      `json:"projectID" yaml:"projectID"`
	ParentID  *string     `json:"parentID,omitempty" yaml:"parentID,omitempty"`
	Directory string      `json:"directory" yaml:"directory"`
	Title     string      `json:"title" yaml:"title"`
	Time      SessionTime `json:"time" yaml:"time"`
}

// SessionTime holds session timestamps in unix milliseconds
type SessionTime struct {
	Created int64 `json:"created" yaml:"created"`
	Updated int64 `json:"updated" yaml:"updated"`
}

// IsRoot reports whether the session has no parent
func (s Session) IsRoot() bool {
	return s.ParentID == nil || *s.ParentID == ""
}

// UpdatedAt returns the last update time in local time
func (s Session) UpdatedAt() time.Time {
	return time.UnixMilli(s.Time.Updated).Local()
}

// Message is a message envelope: opaque info plus its ordered parts
type Message struct {
	Info  json.RawMessage   `json:"info" yaml:"-"`
	Parts []json.RawMessage `json:"parts" yaml:"-"`
}

// ID returns the message id from its info object
func (m Message) ID() string {
	return gjson.GetBytes(m.Info, "id").String()
}

// Role returns the message role ("user", "assistant", ...)
func (m Message) Role() string {
	return gjson.GetBytes(m.Info, "role").String()
}

// Created returns the message creation time, zero if unknown
func (m Message) Created() time.Time {
	ms := gjson.GetBytes(m.Info, "time.created").Int()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).Local()
}

// PartTypes lists the type of every part, in order
func (m Message) PartTypes() []string {
	types := make([]string, 0, len(m.Parts))
	for _, p := range m.Parts {
		types = append(types, gjson.GetBytes(p, "type").String())
	}
	return types
}

// Text joins the text of all non-synthetic text parts
func (m Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		part := gjson.ParseBytes(p)
		if part.Get("type").String() != "text" || part.Get("synthetic").Bool() {
			continue
		}
		if text := strings.TrimSpace(part.Get("text").String()); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n")
}

// MarshalYAML renders the opaque JSON as plain YAML values
func (m Message) MarshalYAML() (interface{}, error) {
	parts := make([]interface{}, 0, len(m.Parts))
	for _, p := range m.Parts {
		parts = append(parts, gjson.ParseBytes(p).Value())
	}
	return map[string]interface{}{
		"info":  gjson.ParseBytes(m.Info).Value(),
		"parts": parts,
	}, nil
}

// Health is the server health report
type Health struct {
	Healthy bool   `json:"healthy" yaml:"healthy"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// ListSessionsOptions filters a session listing. Zero values mean "not given".
type ListSessionsOptions struct {
	Directory string
	// Roots selects root sessions (true), child sessions (false) or both (nil).
	Roots  *bool
	Start  int
	Search string
	Limit  int
}

// LookupOptions scopes a single-entity lookup to a directory
type LookupOptions struct {
	Directory string
}

// ListMessagesOptions filters a message listing
type ListMessagesOptions struct {
	Directory string
	Limit     int
}

// Bool returns a pointer to b, for tri-state options such as Roots
func Bool(b bool) *bool {
	return &b
}
