package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/strrl/opencode-sessions/internal/sessions"
	"github.com/strrl/opencode-sessions/pkg/models"
)

type viewMode int

const (
	projectView viewMode = iota
	sessionView
)

// LoadingState is what the browser is currently waiting for
type LoadingState int

const (
	StateIdle LoadingState = iota
	StateLoadingProjects
	StateLoadingSessions
	StateLoadingMessages
)

const (
	previewCacheTTL     = 5 * time.Minute
	previewCacheCleanup = 10 * time.Minute
)

// Options configures the browser
type Options struct {
	// SessionLimit caps the sessions listed per project
	SessionLimit int
}

type model struct {
	ctx    context.Context
	src    sessions.Source
	limit  int
	cancel context.CancelFunc

	projects        []models.Project
	sessions        []models.Session
	currentMode     viewMode
	projectCursor   int
	sessionCursor   int
	selectedProject *models.Project
	selectedSession *models.Session

	viewport      viewport.Model
	leftViewport  viewport.Model // sessions list in split view
	rightViewport viewport.Model // message preview in split view

	currentMessages []string
	messageCache    *cache.Cache
	loadingMessages map[string]bool
	loadingState    LoadingState
	activeRequests  map[string]context.CancelFunc
	loading         LoadingIndicator

	ready  bool
	err    error
	width  int
	height int
}

func initialModel(ctx context.Context, src sessions.Source, opts Options) model {
	ctx, cancel := context.WithCancel(ctx)
	limit := opts.SessionLimit
	if limit <= 0 {
		limit = models.DefaultSessionListLimit
	}

	m := model{
		ctx:             ctx,
		cancel:          cancel,
		src:             src,
		limit:           limit,
		currentMode:     projectView,
		messageCache:    cache.New(previewCacheTTL, previewCacheCleanup),
		loadingMessages: make(map[string]bool),
		activeRequests:  make(map[string]context.CancelFunc),
		loading:         NewLoadingIndicator(),
		loadingState:    StateLoadingProjects,
	}
	m.loading.Start("Loading projects...")
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		loadProjectsCmd(m.ctx, m.src),
		m.loading.spinner.Tick,
	)
}

// startRequest registers a cancellable request and shows the indicator
func (m *model) startRequest(state LoadingState, message string) (string, context.Context, tea.Cmd) {
	requestID := uuid.New().String()
	ctx, cancel := context.WithCancel(m.ctx)
	m.activeRequests[requestID] = cancel
	m.loadingState = state
	return requestID, ctx, m.loading.Start(message)
}

// finishRequest reports whether requestID is still wanted and releases it
func (m *model) finishRequest(requestID string) bool {
	cancel, ok := m.activeRequests[requestID]
	if !ok {
		return false
	}
	cancel()
	delete(m.activeRequests, requestID)
	if len(m.activeRequests) == 0 {
		m.loadingState = StateIdle
		m.loading.Stop()
	}
	return true
}

// cancelAll drops every in-flight request
func (m *model) cancelAll() {
	for requestID, cancel := range m.activeRequests {
		cancel()
		delete(m.activeRequests, requestID)
	}
	for sessionID := range m.loadingMessages {
		delete(m.loadingMessages, sessionID)
	}
	m.loadingState = StateIdle
	m.loading.Stop()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		leftWidth := msg.Width/2 - 1
		rightWidth := msg.Width - leftWidth - 1
		viewHeight := msg.Height - 3

		if !m.ready {
			m.viewport = viewport.New(msg.Width, viewHeight)
			m.leftViewport = viewport.New(leftWidth, viewHeight)
			m.rightViewport = viewport.New(rightWidth, viewHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = viewHeight
			m.leftViewport.Width = leftWidth
			m.leftViewport.Height = viewHeight
			m.rightViewport.Width = rightWidth
			m.rightViewport.Height = viewHeight
		}
		m.updateViewport()

	case spinner.TickMsg:
		return m, m.loading.Update(msg)

	case ProjectsLoadedMsg:
		if m.loadingState == StateLoadingProjects {
			m.loadingState = StateIdle
			m.loading.Stop()
		}
		if msg.Error != nil {
			m.err = fmt.Errorf("failed to load projects: %w", msg.Error)
			return m, nil
		}
		m.projects = msg.Projects
		m.projectCursor = 0
		m.updateViewport()
		return m, nil

	case SessionsLoadedMsg:
		if !m.finishRequest(msg.RequestID) {
			return m, nil
		}
		if msg.Error != nil {
			m.err = fmt.Errorf("failed to load sessions: %w", msg.Error)
			return m, nil
		}
		project := msg.Project
		m.selectedProject = &project
		m.sessions = msg.Sessions
		m.currentMode = sessionView
		m.sessionCursor = 0
		cmd := m.loadCurrentSessionMessages()
		m.updateViewport()
		return m, cmd

	case MessagesLoadedMsg:
		wanted := m.finishRequest(msg.RequestID)
		delete(m.loadingMessages, msg.SessionID)
		if !wanted {
			return m, nil
		}

		var lines []string
		switch {
		case msg.Error != nil:
			lines = []string{fmt.Sprintf("Error loading messages: %v", msg.Error)}
		case len(msg.Messages) == 0:
			lines = []string{"No messages found for this session"}
			m.messageCache.Set(msg.SessionID, lines, cache.DefaultExpiration)
		default:
			lines = msg.Messages
			m.messageCache.Set(msg.SessionID, lines, cache.DefaultExpiration)
		}

		if current, ok := m.currentSession(); ok && current.ID == msg.SessionID {
			m.currentMessages = lines
			m.updateViewport()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancelAll()
			m.cancel()
			return m, tea.Quit

		case "up", "k":
			if m.loadingState == StateLoadingSessions {
				break
			}
			if m.currentMode == projectView {
				if m.projectCursor > 0 {
					m.projectCursor--
					m.updateViewport()
				}
			} else if m.sessionCursor > 0 {
				m.sessionCursor--
				cmds = append(cmds, m.loadCurrentSessionMessages())
				m.updateViewport()
			}

		case "down", "j":
			if m.loadingState == StateLoadingSessions {
				break
			}
			if m.currentMode == projectView {
				if m.projectCursor < len(m.projects)-1 {
					m.projectCursor++
					m.updateViewport()
				}
			} else if m.sessionCursor < len(m.sessions)-1 {
				m.sessionCursor++
				cmds = append(cmds, m.loadCurrentSessionMessages())
				m.updateViewport()
			}

		case "enter":
			if m.loadingState == StateLoadingSessions || m.loadingState == StateLoadingProjects {
				break
			}
			if m.currentMode == projectView {
				if m.projectCursor < len(m.projects) {
					project := m.projects[m.projectCursor]
					requestID, ctx, cmd := m.startRequest(StateLoadingSessions, "Loading sessions...")
					return m, tea.Batch(cmd, loadSessionsCmd(ctx, m.src, requestID, project, m.limit))
				}
			} else if session, ok := m.currentSession(); ok {
				m.selectedSession = &session
				m.cancelAll()
				m.cancel()
				return m, tea.Quit
			}

		case "esc", "backspace":
			if m.loadingState != StateIdle {
				m.cancelAll()
				m.updateViewport()
				return m, nil
			}
			if m.currentMode == sessionView {
				m.currentMode = projectView
				m.selectedProject = nil
				m.sessions = nil
				m.sessionCursor = 0
				m.currentMessages = nil
				m.updateViewport()
			}
		}
	}

	// Handle viewport updates
	if m.currentMode == projectView {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	} else {
		var leftCmd, rightCmd tea.Cmd
		m.leftViewport, leftCmd = m.leftViewport.Update(msg)
		m.rightViewport, rightCmd = m.rightViewport.Update(msg)
		cmds = append(cmds, leftCmd, rightCmd)
	}

	return m, tea.Batch(cmds...)
}

func (m model) currentSession() (models.Session, bool) {
	if m.currentMode != sessionView || m.sessionCursor >= len(m.sessions) {
		return models.Session{}, false
	}
	return m.sessions[m.sessionCursor], true
}

// loadCurrentSessionMessages shows the cached preview or starts loading it
func (m *model) loadCurrentSessionMessages() tea.Cmd {
	session, ok := m.currentSession()
	if !ok {
		m.currentMessages = []string{}
		return nil
	}

	if cached, found := m.messageCache.Get(session.ID); found {
		m.currentMessages = cached.([]string)
		return nil
	}

	m.currentMessages = []string{}
	if m.loadingMessages[session.ID] {
		return nil
	}
	m.loadingMessages[session.ID] = true

	requestID, ctx, cmd := m.startRequest(StateLoadingMessages, "Loading messages...")
	return tea.Batch(cmd, loadMessagesCmd(ctx, m.src, requestID, session))
}

func (m *model) updateViewport() {
	if !m.ready {
		return
	}
	if m.currentMode == projectView {
		m.viewport.SetContent(m.renderProjects())
	} else {
		m.leftViewport.SetContent(m.renderSessionsList())
		m.rightViewport.SetContent(m.renderMessages())
	}
}

// projectName is the last path element of the worktree
func projectName(project models.Project) string {
	if project.Worktree == "" || project.Worktree == "/" {
		return "Unknown"
	}
	return filepath.Base(project.Worktree)
}

func relativeTime(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return humanize.Time(time.UnixMilli(ms))
}

func (m model) renderProjects() string {
	if len(m.projects) == 0 {
		return lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Render("No projects found")
	}

	var s strings.Builder
	for i, project := range m.projects {
		cursor := "  "
		style := lipgloss.NewStyle()
		if i == m.projectCursor {
			cursor = "> "
			style = style.Foreground(lipgloss.Color("212")).Bold(true)
		}

		line := fmt.Sprintf("%s%s - %s", cursor, projectName(project), relativeTime(project.Time.Updated))
		s.WriteString(style.Render(line) + "\n")

		pathStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
		s.WriteString(pathStyle.Render("    "+project.Worktree) + "\n")
	}

	return s.String()
}

func (m model) renderSessionsList() string {
	if m.selectedProject == nil {
		return "No project selected"
	}

	var s strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229"))
	s.WriteString(headerStyle.Render(fmt.Sprintf("Sessions (%d)", len(m.sessions))) + "\n")
	dividerWidth := m.leftViewport.Width - 2
	if dividerWidth < 10 {
		dividerWidth = 10
	}
	s.WriteString(strings.Repeat("─", dividerWidth) + "\n\n")

	if len(m.sessions) == 0 {
		s.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true).Render("No sessions found"))
		return s.String()
	}

	titleWidth := m.leftViewport.Width - 6
	if titleWidth < 10 {
		titleWidth = 10
	}

	for i, session := range m.sessions {
		cursor := "  "
		dateStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
		titleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
		if i == m.sessionCursor {
			cursor = "> "
			dateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
			titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
		}

		marker := ""
		if !session.IsRoot() {
			marker = " ↳"
		}
		line := fmt.Sprintf("%s%s (%s)%s",
			cursor,
			session.UpdatedAt().Format("01-02 15:04"),
			relativeTime(session.Time.Updated),
			marker)
		s.WriteString(dateStyle.Render(line) + "\n")

		title := session.Title
		if title == "" {
			title = session.ID
		}
		s.WriteString(titleStyle.Render("  "+truncate(title, titleWidth)) + "\n")

		if i < len(m.sessions)-1 {
			s.WriteString("\n")
		}
	}

	return s.String()
}

func (m model) renderMessages() string {
	var s strings.Builder

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229"))

	s.WriteString(headerStyle.Render("Recent Messages") + "\n")
	dividerWidth := m.rightViewport.Width - 2
	if dividerWidth < 10 {
		dividerWidth = 10
	}
	s.WriteString(strings.Repeat("─", dividerWidth) + "\n\n")

	if m.loadingState == StateLoadingMessages && len(m.currentMessages) == 0 {
		s.WriteString(m.loading.View())
		return s.String()
	}

	if len(m.currentMessages) == 0 {
		emptyStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)
		s.WriteString(emptyStyle.Render("No messages found"))
		return s.String()
	}

	messageStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))
	numStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("243")).
		Bold(true)

	wrapWidth := m.rightViewport.Width - 5
	if wrapWidth < 20 {
		wrapWidth = 20
	}

	for i, msg := range m.currentMessages {
		s.WriteString(numStyle.Render(fmt.Sprintf("%d. ", i+1)))

		for j, line := range wrapText(msg, wrapWidth) {
			if j > 0 {
				s.WriteString("   ")
			}
			s.WriteString(messageStyle.Render(line) + "\n")
		}

		if i < len(m.currentMessages)-1 {
			s.WriteString("\n")
		}
	}

	return s.String()
}

// wrapText wraps text to fit within the specified width
func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{text}
	}

	var lines []string
	currentLine := words[0]
	for _, word := range words[1:] {
		if lipgloss.Width(currentLine)+1+lipgloss.Width(word) > width {
			lines = append(lines, currentLine)
			currentLine = word
		} else {
			currentLine += " " + word
		}
	}
	return append(lines, currentLine)
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	if m.err != nil {
		return fmt.Sprintf("\n  Error: %v\n", m.err)
	}

	header := m.renderHeader()
	footer := m.renderFooter()

	if m.loadingState == StateLoadingProjects || m.loadingState == StateLoadingSessions {
		return fmt.Sprintf("%s\n%s\n%s", header, LoadingOverlay(m.width, m.viewport.Height, m.loading), footer)
	}
	if m.currentMode == projectView {
		return fmt.Sprintf("%s\n%s\n%s", header, m.viewport.View(), footer)
	}
	return fmt.Sprintf("%s\n%s\n%s", header, m.renderSplitView(), footer)
}

func (m model) renderSplitView() string {
	leftStyle := lipgloss.NewStyle().
		Width(m.leftViewport.Width).
		Height(m.leftViewport.Height)

	rightStyle := lipgloss.NewStyle().
		Width(m.rightViewport.Width).
		Height(m.rightViewport.Height)

	dividerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("238")).
		Height(m.leftViewport.Height)

	divider := strings.TrimSuffix(strings.Repeat("│\n", m.leftViewport.Height), "\n")

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		leftStyle.Render(m.leftViewport.View()),
		dividerStyle.Render(divider),
		rightStyle.Render(m.rightViewport.View()),
	)
}

func (m model) renderHeader() string {
	title := "OpenCode Sessions - Projects"
	if m.currentMode == sessionView && m.selectedProject != nil {
		title = fmt.Sprintf("OpenCode Sessions - %s", projectName(*m.selectedProject))
	}

	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("63"))

	return style.Render(title)
}

func (m model) renderFooter() string {
	info := "↑/↓: navigate • enter: select"
	if m.currentMode == sessionView {
		info = "↑/↓: navigate • enter: resume • esc: back"
	}
	info += " • q: quit"

	style := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	return style.Render(info)
}

// ShowTUI runs the browser and returns the session picked for resuming,
// or nil when the user quit.
func ShowTUI(ctx context.Context, src sessions.Source, opts Options) (*models.Session, error) {
	p := tea.NewProgram(
		initialModel(ctx, src, opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return nil, err
	}

	m := finalModel.(model)
	m.cancel()
	return m.selectedSession, nil
}
