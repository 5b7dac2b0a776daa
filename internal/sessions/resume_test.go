package sessions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumeCommand(t *testing.T) {
	dir := t.TempDir()

	cmd, err := ResumeCommand("/opt/custom/opencode", "ses_123", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/custom/opencode", "--session", "ses_123"}, cmd.Args)
	assert.Equal(t, dir, cmd.Dir)
}

func TestResumeCommandWithoutDirectory(t *testing.T) {
	cmd, err := ResumeCommand("/opt/custom/opencode", "ses_123", "")
	require.NoError(t, err)
	assert.Empty(t, cmd.Dir)
}

func TestResumeCommandMissingDirectory(t *testing.T) {
	_, err := ResumeCommand("opencode", "ses_123", filepath.Join(t.TempDir(), "gone"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to change to project directory")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = ResumeCommand("opencode", "ses_123", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestFindOpencodeKeepsCustomName(t *testing.T) {
	assert.Equal(t, "my-opencode-build", FindOpencode("my-opencode-build"))
}
