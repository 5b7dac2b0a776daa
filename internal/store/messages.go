package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/strrl/opencode-sessions/internal/dataerr"
	"github.com/strrl/opencode-sessions/pkg/models"
)

// ListMessages returns the messages of a session, oldest first, with their parts.
// With a limit only the most recent messages are returned.
func (s *Store) ListMessages(ctx context.Context, sessionID string, opts models.ListMessagesOptions) ([]models.Message, error) {
	if opts.Directory != "" {
		if _, err := s.GetSession(ctx, sessionID, models.LookupOptions{Directory: opts.Directory}); err != nil {
			return nil, err
		}
	}

	query := `
		SELECT id, data
		FROM message
		WHERE session_id = ?
		ORDER BY time_created ASC, id ASC
	`
	args := []interface{}{sessionID}
	if opts.Limit > 0 {
		query = `
			SELECT id, data FROM (
				SELECT id, data, time_created
				FROM message
				WHERE session_id = ?
				ORDER BY time_created DESC, id DESC
				LIMIT ?
			) recent
			ORDER BY time_created ASC, id ASC
		`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.queryError("ListMessages", err)
	}
	defer func() { _ = rows.Close() }()

	messages := []models.Message{}
	index := make(map[string]int)
	for rows.Next() {
		var id string
		var data sql.NullString
		if err := rows.Scan(&id, &data); err != nil {
			return nil, s.queryError("ListMessages", err)
		}
		index[id] = len(messages)
		messages = append(messages, models.Message{
			Info:  messageInfo(id, data.String),
			Parts: []json.RawMessage{},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, s.queryError("ListMessages", err)
	}
	if len(messages) == 0 {
		return messages, nil
	}

	parts, err := s.sessionParts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for messageID, messageParts := range parts {
		if i, ok := index[messageID]; ok {
			messages[i].Parts = messageParts
		}
	}

	return messages, nil
}

// GetMessage returns a single message with its parts
func (s *Store) GetMessage(ctx context.Context, sessionID, messageID string, opts models.LookupOptions) (*models.Message, error) {
	if opts.Directory != "" {
		if _, err := s.GetSession(ctx, sessionID, opts); err != nil {
			return nil, err
		}
	}

	var id string
	var data sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, data
		FROM message
		WHERE id = ? AND session_id = ?
	`, messageID, sessionID).Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dataerr.NotFound("Message not found: %s", messageID)
	}
	if err != nil {
		return nil, s.queryError("GetMessage", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, data
		FROM part
		WHERE message_id = ? AND session_id = ?
		ORDER BY time_created ASC, id ASC
	`, messageID, sessionID)
	if err != nil {
		return nil, s.queryError("GetMessage", err)
	}
	defer func() { _ = rows.Close() }()

	grouped := s.collectParts(rows, sessionID)
	if err := rows.Err(); err != nil {
		return nil, s.queryError("GetMessage", err)
	}

	msg := &models.Message{Info: messageInfo(id, data.String), Parts: grouped[messageID]}
	if msg.Parts == nil {
		msg.Parts = []json.RawMessage{}
	}
	return msg, nil
}

// sessionParts loads every part of a session in one query, grouped by message
func (s *Store) sessionParts(ctx context.Context, sessionID string) (map[string][]json.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, data
		FROM part
		WHERE session_id = ?
		ORDER BY time_created ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, s.queryError("ListParts", err)
	}
	defer func() { _ = rows.Close() }()

	grouped := s.collectParts(rows, sessionID)
	if err := rows.Err(); err != nil {
		return nil, s.queryError("ListParts", err)
	}
	return grouped, nil
}

// collectParts groups part rows by message id, keeping row order.
// Rows that cannot be scanned or decoded are skipped.
func (s *Store) collectParts(rows *sql.Rows, sessionID string) map[string][]json.RawMessage {
	grouped := make(map[string][]json.RawMessage)
	for rows.Next() {
		var id, messageID string
		var data sql.NullString
		if err := rows.Scan(&id, &messageID, &data); err != nil {
			continue
		}
		part, ok := partJSON(id, messageID, sessionID, data.String)
		if !ok {
			s.log.WithField("part", id).Debug("Skipping malformed part")
			continue
		}
		grouped[messageID] = append(grouped[messageID], part)
	}
	return grouped
}

// messageInfo decodes a stored payload best-effort and merges the id into it.
// Unparseable or non-object payloads become {"id": ...}.
func messageInfo(id, data string) json.RawMessage {
	raw := []byte(data)
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		raw = []byte("{}")
	}
	out, err := sjson.SetBytes(raw, "id", id)
	if err != nil {
		out, _ = json.Marshal(map[string]string{"id": id})
	}
	return out
}

// partJSON returns the part payload with its ids filled in where missing
func partJSON(id, messageID, sessionID, data string) (json.RawMessage, bool) {
	raw := []byte(data)
	if !gjson.ValidBytes(raw) || !gjson.ParseBytes(raw).IsObject() {
		return nil, false
	}

	fields := []struct{ key, value string }{
		{"id", id},
		{"messageID", messageID},
		{"sessionID", sessionID},
	}
	for _, f := range fields {
		if gjson.GetBytes(raw, f.key).Exists() {
			continue
		}
		var err error
		if raw, err = sjson.SetBytes(raw, f.key, f.value); err != nil {
			return nil, false
		}
	}
	return raw, true
}
