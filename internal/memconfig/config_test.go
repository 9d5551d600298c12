package memconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesDocumentedValues(t *testing.T) {
	d := Default()
	assert.Equal(t, int64(50*1024*1024), d.MaxFileSize)
	assert.Equal(t, 1000, d.MaxConversationsPerFile)
	assert.Equal(t, 1.5, d.Retrieval.FactBoostFactor)
	assert.Equal(t, 0.85, d.Retrieval.SimilarityThreshold)
	assert.Equal(t, 384, d.Embedding.Dimension)
}

func TestLoad_PartialFileKeepsDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
max_file_size: 1024
retrieval:
  k: 5
`), 0o644))

	orig := GetConfig()
	defer SetConfig(orig)

	require.NoError(t, Load(path))
	cfg := GetConfig()

	assert.Equal(t, int64(1024), cfg.MaxFileSize)
	assert.Equal(t, 5, cfg.Retrieval.K)
	// untouched fields fall back to defaults
	assert.Equal(t, 1000, cfg.MaxConversationsPerFile)
	assert.Equal(t, 1.5, cfg.Retrieval.FactBoostFactor)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	orig := GetConfig()
	defer SetConfig(orig)

	err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestLoad_MalformedYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid: yaml"), 0o644))

	orig := GetConfig()
	defer SetConfig(orig)

	err := Load(path)
	require.Error(t, err)
}

func TestGetConfig_ReturnsIndependentCopy(t *testing.T) {
	orig := GetConfig()
	defer SetConfig(orig)

	SetConfig(Default())
	cfg := GetConfig()
	cfg.Retrieval.K = 999

	assert.NotEqual(t, 999, GetConfig().Retrieval.K)
}

func TestLoad_RetryDurationsParseFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
retry:
  max_retries: 5
  initial_delay: 500ms
  max_delay: 10s
`), 0o644))

	orig := GetConfig()
	defer SetConfig(orig)

	require.NoError(t, Load(path))
	cfg := GetConfig()

	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 10*time.Second, cfg.Retry.MaxDelay)
}
