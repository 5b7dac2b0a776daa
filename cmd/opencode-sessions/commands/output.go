package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	ltable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/strrl/opencode-sessions/internal/config"
	"github.com/strrl/opencode-sessions/pkg/models"
)

const textColumnWidth = 60

// printer writes values in the configured output format. table renders
// the human view and is only called for the table format.
type printer struct {
	out    io.Writer
	format string
}

func (p printer) print(v interface{}, table func() string) error {
	switch p.format {
	case config.OutputJSON:
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	case config.OutputYAML:
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		_, err := fmt.Fprintln(p.out, table())
		return err
	}
}

func newTable(headers ...string) *ltable.Table {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	return ltable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == ltable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func relative(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return humanize.Time(time.UnixMilli(ms))
}

func oneLine(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

func healthTable(h *models.Health) string {
	status := "unhealthy"
	if h.Healthy {
		status = "healthy"
	}
	if h.Version != "" {
		status += " (version " + h.Version + ")"
	}
	return status
}

func projectsTable(projects []models.Project) string {
	if len(projects) == 0 {
		return "No projects found"
	}
	t := newTable("ID", "WORKTREE", "UPDATED")
	for _, p := range projects {
		t.Row(p.ID, p.Worktree, relative(p.Time.Updated))
	}
	return t.Render()
}

func sessionsTable(list []models.Session) string {
	if len(list) == 0 {
		return "No sessions found"
	}
	t := newTable("ID", "TITLE", "DIRECTORY", "UPDATED", "PARENT")
	for _, s := range list {
		parent := "-"
		if !s.IsRoot() {
			parent = *s.ParentID
		}
		t.Row(s.ID, oneLine(s.Title, textColumnWidth), s.Directory, relative(s.Time.Updated), parent)
	}
	return t.Render() + "\n" + humanize.Comma(int64(len(list))) + " sessions"
}

func sessionTable(s *models.Session) string {
	parent := "-"
	if !s.IsRoot() {
		parent = *s.ParentID
	}
	t := newTable("FIELD", "VALUE")
	t.Row("id", s.ID)
	t.Row("title", s.Title)
	t.Row("project", s.ProjectID)
	t.Row("directory", s.Directory)
	t.Row("parent", parent)
	t.Row("created", relative(s.Time.Created))
	t.Row("updated", relative(s.Time.Updated))
	return t.Render()
}

func messagesTable(messages []models.Message) string {
	if len(messages) == 0 {
		return "No messages found"
	}
	t := newTable("ID", "ROLE", "CREATED", "PARTS", "TEXT")
	for _, m := range messages {
		created := "-"
		if at := m.Created(); !at.IsZero() {
			created = humanize.Time(at)
		}
		t.Row(m.ID(), m.Role(), created, strings.Join(m.PartTypes(), ","), oneLine(m.Text(), textColumnWidth))
	}
	return t.Render()
}

func messageTable(m *models.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s]", m.ID(), m.Role())
	if at := m.Created(); !at.IsZero() {
		fmt.Fprintf(&b, " %s", at.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "\nparts: %s", strings.Join(m.PartTypes(), ", "))
	if text := m.Text(); text != "" {
		b.WriteString("\n\n" + text)
	}
	return b.String()
}
