package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "hash", cfg.Embedder.Type)
	assert.Equal(t, 384, cfg.Embedder.Dimension)
	assert.Equal(t, 800, cfg.Chunker.TargetSize)
	assert.Equal(t, "ibm/granite-3-8b-instruct", cfg.Granite.ModelID)
	assert.Equal(t, "WATSONX_API_KEY", cfg.Granite.APIKeyEnv)
}

func TestLoadAppliesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9999"
embedder:
  type: remote
  dimension: 1536
granite:
  project_id: proj-42
scheduler:
  digest_schedule: "0 8 * * *"
  digest_owners: ["+1555"]
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	assert.Equal(t, "remote", cfg.Embedder.Type)
	assert.Equal(t, 1536, cfg.Embedder.Dimension)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedder.BaseURL, "remote defaults fill in")
	assert.Equal(t, "proj-42", cfg.Granite.ProjectID)
	assert.Equal(t, "0 8 * * *", cfg.Scheduler.DigestSchedule)
	assert.Equal(t, []string{"+1555"}, cfg.Scheduler.DigestOwners)
	assert.Equal(t, "data/assistant.db", cfg.Store.Path, "unset sections keep defaults")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: a map"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestSecretsComeFromEnvironment(t *testing.T) {
	t.Setenv("WATSONX_API_KEY", "k-123")
	t.Setenv("TWILIO_ACCOUNT_SID", "AC9")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "k-123", cfg.Granite.APIKey())
	assert.Equal(t, "AC9", cfg.Twilio.AccountSID())
	assert.Equal(t, "tok", cfg.Twilio.AuthToken())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	cfg.Server.Addr = ":7070"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", loaded.Server.Addr)
}
