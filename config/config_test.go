package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigAnchorsSessionBasePath(t *testing.T) {
	workdir := t.TempDir()
	t.Setenv("WABOTHUB_SYSTEM_WORKDIR", workdir)
	t.Setenv("SESSION_BASE_PATH", "./session")

	cfg := LoadConfig("")
	assert.Equal(t, filepath.Join(workdir, "session"), cfg.Bot.SessionBasePath)
	assert.Equal(t, filepath.Join(workdir, "session", "session_628111"), cfg.SessionDir("628111"))
}

func TestLoadConfigKeepsAbsoluteSessionBasePath(t *testing.T) {
	base := t.TempDir()
	t.Setenv("WABOTHUB_SYSTEM_WORKDIR", t.TempDir())
	t.Setenv("SESSION_BASE_PATH", base)

	cfg := LoadConfig("")
	assert.Equal(t, base, cfg.Bot.SessionBasePath)
}
