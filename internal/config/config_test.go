package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.CollaborationMaxTurns)
	assert.Equal(t, 252, cfg.TradingDaysPerYear)
	assert.Equal(t, RateLimit{MaxCalls: 10, Period: time.Second}, cfg.RateLimits[ProviderSEC])
}

func TestValidateRejectsMinTurnsAboveRounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDebateRounds = 1
	cfg.MinAgentTurns = 2

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "min_agent_turns")
}

func TestValidateCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLMProvider = "openai"
	cfg.OpenAIAPIKey = ""
	cfg.FinnhubAPIKey = ""

	err := cfg.ValidateCredentials()
	require.ErrorIs(t, err, ErrMissingCredentials)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	assert.Contains(t, err.Error(), "FINNHUB_API_KEY")

	cfg.LLMProvider = "deepseek"
	cfg.DeepSeekAPIKey = "ds"
	cfg.FinnhubAPIKey = "fh"
	assert.NoError(t, cfg.ValidateCredentials())
}

func TestWriteAndLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.MaxDebateRounds = 3
	cfg.ResultsDir = filepath.Join(dir, "results")
	require.NoError(t, WriteFile(path, cfg))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.MaxDebateRounds)
	assert.Equal(t, cfg.ResultsDir, loaded.ResultsDir)
	assert.Equal(t, cfg.AgentTimeout, loaded.AgentTimeout)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ResultsDir = filepath.Join(dir, "results")
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DataCacheDir = filepath.Join(dir, "data", "cache")
	cfg.DBPath = filepath.Join(dir, "db", "alpha.db")

	require.NoError(t, cfg.EnsureDirectories())
	assert.DirExists(t, cfg.ResultsDir)
	assert.DirExists(t, cfg.DataCacheDir)
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestDetectFile(t *testing.T) {
	dir := t.TempDir()
	_, ok := DetectFile(dir)
	assert.False(t, ok)

	require.NoError(t, WriteFile(filepath.Join(dir, DefaultFile), DefaultConfig()))
	path, ok := DetectFile(dir)
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(dir, DefaultFile), path)
}
