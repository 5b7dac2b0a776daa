package sessions

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FindOpencode resolves the opencode executable, checking common install
// locations when it is not on PATH.
func FindOpencode(name string) string {
	if name == "" {
		name = "opencode"
	}
	if _, err := exec.LookPath(name); err == nil || name != "opencode" {
		return name
	}

	homeDir, _ := os.UserHomeDir()
	possiblePaths := []string{
		filepath.Join(homeDir, ".opencode", "bin", "opencode"),
		"/usr/local/bin/opencode",
		"/opt/homebrew/bin/opencode",
	}
	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return name
}

// ResumeCommand builds `opencode --session <id>` running in directory
func ResumeCommand(binary, sessionID, directory string) (*exec.Cmd, error) {
	cmd := exec.Command(FindOpencode(binary), "--session", sessionID)
	if directory != "" {
		info, err := os.Stat(directory)
		if err != nil {
			return nil, fmt.Errorf("failed to change to project directory %s: %w", directory, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("failed to change to project directory %s: not a directory", directory)
		}
		cmd.Dir = directory
	}
	return cmd, nil
}

// ExecuteResume resumes a session in opencode attached to this terminal
func ExecuteResume(binary, sessionID, directory string) error {
	cmd, err := ResumeCommand(binary, sessionID, directory)
	if err != nil {
		return err
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
