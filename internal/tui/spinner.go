package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LoadingIndicator pairs a spinner with a status message
type LoadingIndicator struct {
	spinner spinner.Model
	message string
	active  bool
}

// NewLoadingIndicator creates an idle loading indicator
func NewLoadingIndicator() LoadingIndicator {
	return LoadingIndicator{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("212"))),
		),
	}
}

// Start shows message and starts the animation if it is not running
func (l *LoadingIndicator) Start(message string) tea.Cmd {
	l.message = message
	if l.active {
		return nil
	}
	l.active = true
	return l.spinner.Tick
}

// Stop hides the indicator; pending ticks are dropped
func (l *LoadingIndicator) Stop() {
	l.active = false
}

// Active reports whether the indicator is shown
func (l LoadingIndicator) Active() bool {
	return l.active
}

// Update advances the animation
func (l *LoadingIndicator) Update(msg spinner.TickMsg) tea.Cmd {
	if !l.active {
		return nil
	}
	var cmd tea.Cmd
	l.spinner, cmd = l.spinner.Update(msg)
	return cmd
}

// View renders the spinner and message
func (l LoadingIndicator) View() string {
	messageStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("250"))

	return fmt.Sprintf("%s %s", l.spinner.View(), messageStyle.Render(l.message))
}

// LoadingOverlay creates a centered loading overlay
func LoadingOverlay(width, height int, indicator LoadingIndicator) string {
	cancelHint := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("[ESC to cancel]")

	style := lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center)

	return style.Render(fmt.Sprintf("%s\n\n%s", indicator.View(), cancelHint))
}
