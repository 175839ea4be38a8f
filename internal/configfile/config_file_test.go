package configfile

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetLoader() {
	profileConfigs = nil
	profileConfigsError = nil
	profileConfigsOnce = sync.Once{}
}

func TestLoadDefaultProfile(t *testing.T) {
	resetLoader()
	t.Cleanup(resetLoader)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[default]
api_key = "key-from-file"
domain = "gateway.file.test"
disable_secure_protocol = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("KRUISE_CONFIG_FILE", path)
	t.Setenv("KRUISE_PROFILE", "")

	profile, err := Load()
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "key-from-file", profile.APIKey)
	assert.Equal(t, "gateway.file.test", profile.Domain)
	assert.True(t, profile.DisableSecureProtocol)
}

func TestLoadNamedProfile(t *testing.T) {
	resetLoader()
	t.Cleanup(resetLoader)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[default]
api_key = "default-key"

[staging]
api_key = "staging-key"
domain = "staging.test"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("KRUISE_CONFIG_FILE", path)
	t.Setenv("KRUISE_PROFILE", "staging")

	profile, err := Load()
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "staging-key", profile.APIKey)
	assert.Equal(t, "staging.test", profile.Domain)
}

func TestLoadMissingFile(t *testing.T) {
	resetLoader()
	t.Cleanup(resetLoader)

	t.Setenv("KRUISE_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	profile, err := Load()
	assert.NoError(t, err)
	assert.Nil(t, profile)
}

func TestLoadUnknownProfile(t *testing.T) {
	resetLoader()
	t.Cleanup(resetLoader)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[default]\napi_key = \"k\"\n"), 0o600))
	t.Setenv("KRUISE_CONFIG_FILE", path)
	t.Setenv("KRUISE_PROFILE", "nonexistent")

	profile, err := Load()
	assert.NoError(t, err)
	assert.Nil(t, profile)
}
