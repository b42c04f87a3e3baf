package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
	assert.True(t, cfg.Interactive())
}

func TestParseFlags(t *testing.T) {
	cfg, err := Parse([]string{
		"-p", "add type hints",
		"-R", "a",
		"--pipe", "--blocks",
		"-f", "notes.md",
		"-m", "claude-3-haiku-20240307",
		"-j", "4",
		"-v",
	})
	require.NoError(t, err)
	assert.Equal(t, "add type hints", cfg.Prompt)
	assert.Equal(t, "a", cfg.Register)
	assert.True(t, cfg.Pipe)
	assert.True(t, cfg.Blocks)
	assert.Equal(t, "notes.md", cfg.File)
	assert.Equal(t, "claude-3-haiku-20240307", cfg.Model)
	assert.Equal(t, 4, cfg.Jobs)
	assert.True(t, cfg.Verbose)
	assert.False(t, cfg.Interactive())
}

func TestParseRejectsPipeOnlyFlags(t *testing.T) {
	_, err := Parse([]string{"--blocks"})
	assert.ErrorContains(t, err, "--blocks requires --pipe")

	_, err = Parse([]string{"--clipboard"})
	assert.ErrorContains(t, err, "--clipboard requires --pipe")
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse([]string{"--jobs", "-1"})
	assert.Error(t, err)

	_, err = Parse([]string{"stray"})
	assert.ErrorContains(t, err, "unexpected arguments")

	_, err = Parse([]string{"--nope"})
	assert.Error(t, err)
}

func TestBlankPromptIsInteractive(t *testing.T) {
	cfg, err := Parse([]string{"-p", "   "})
	require.NoError(t, err)
	assert.True(t, cfg.Interactive())
}

func TestParseClearHistoryNeedsRegister(t *testing.T) {
	_, err := Parse([]string{"--clear-history"})
	assert.ErrorContains(t, err, "--clear-history requires --register")

	cfg, err := Parse([]string{"--clear-history", "-R", "a"})
	require.NoError(t, err)
	assert.True(t, cfg.ClearHistory)
	assert.Equal(t, "a", cfg.Register)
}

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := Parse([]string{"--default-config"})
	require.NoError(t, err)
	assert.True(t, cfg.DefaultConfig)
}
