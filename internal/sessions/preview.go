package sessions

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/strrl/opencode-sessions/internal/dataerr"
	"github.com/strrl/opencode-sessions/pkg/models"
)

// previewEdge is how many messages are kept at each end of a preview
const previewEdge = 10

// FormatMessage renders a message as one preview line: a role prefix plus
// truncated text and tool calls. Messages with nothing to show render as "".
func FormatMessage(msg models.Message) string {
	var result []string

	for _, raw := range msg.Parts {
		part := gjson.ParseBytes(raw)
		switch part.Get("type").String() {
		case "text":
			if part.Get("synthetic").Bool() {
				continue
			}
			text := part.Get("text").String()
			// Skip system reminders
			if text != "" && !strings.Contains(text, "system-reminder") {
				result = append(result, truncateString(text, 50))
			}

		case "tool":
			toolName := part.Get("tool").String()
			if toolName == "" {
				toolName = "unknown"
			}

			inputStr := ""
			input := part.Get("state.input")
			if cmd := input.Get("command"); cmd.Exists() {
				inputStr = truncateString(cmd.String(), 30)
			} else if path := input.Get("filePath"); path.Exists() {
				inputStr = filepath.Base(path.String())
			} else if pattern := input.Get("pattern"); pattern.Exists() {
				inputStr = truncateString(pattern.String(), 20)
			} else if input.IsObject() {
				inputStr = truncateString(input.Raw, 30)
			}

			if inputStr != "" {
				result = append(result, fmt.Sprintf("🔧 %s: %s", toolName, inputStr))
			} else {
				result = append(result, fmt.Sprintf("🔧 %s", toolName))
			}

		case "file":
			if name := part.Get("filename").String(); name != "" {
				result = append(result, "📎 "+name)
			}
		}
	}

	if len(result) == 0 {
		return ""
	}
	return rolePrefix(msg.Role()) + strings.Join(result, " | ")
}

func rolePrefix(role string) string {
	switch role {
	case "user":
		return "[User] "
	case "assistant":
		return "[Assistant] "
	case "":
		return ""
	default:
		return fmt.Sprintf("[%s] ", role)
	}
}

// PreviewLines formats messages for display, keeping the first and last
// ten and marking how many were left out in between.
func PreviewLines(messages []models.Message) []string {
	formatted := []string{}
	for _, msg := range messages {
		if line := FormatMessage(msg); line != "" {
			formatted = append(formatted, line)
		}
	}

	if len(formatted) <= 2*previewEdge {
		return formatted
	}

	lines := make([]string, 0, 2*previewEdge+1)
	lines = append(lines, formatted[:previewEdge]...)
	lines = append(lines, fmt.Sprintf("... (%d messages omitted) ...", len(formatted)-2*previewEdge))
	lines = append(lines, formatted[len(formatted)-previewEdge:]...)
	return lines
}

// truncateString collapses whitespace and cuts s to maxLen runes
func truncateString(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

// SessionDebugInfo contains debug information about a session
type SessionDebugInfo struct {
	Session  *models.Session
	Messages []string
}

// DebugSessionMessages dumps every message of a session with its part types
// and full text.
func DebugSessionMessages(ctx context.Context, src Source, sessionID, directory string) (*SessionDebugInfo, error) {
	session, err := src.GetSession(ctx, sessionID, models.LookupOptions{Directory: directory})
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, dataerr.NotFound("Session not found: %s", sessionID)
	}

	messages, err := src.ListMessages(ctx, sessionID, models.ListMessagesOptions{Directory: directory})
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	debugInfo := &SessionDebugInfo{
		Session:  session,
		Messages: []string{},
	}

	for i, msg := range messages {
		role := msg.Role()
		if role == "" {
			role = "unknown"
		}
		at := "unknown time"
		if created := msg.Created(); !created.IsZero() {
			at = created.Format(time.RFC3339)
		}

		header := fmt.Sprintf("Message %d [%s] %s at %s, parts: %s",
			i+1, role, msg.ID(), at, strings.Join(msg.PartTypes(), ", "))
		if text := msg.Text(); text != "" {
			header += ":\n" + text
		}
		debugInfo.Messages = append(debugInfo.Messages, header)
	}

	return debugInfo, nil
}
