package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LoadJSON(t *testing.T) {
	dir := t.TempDir()

	data := `{
		"host": "0.0.0.0",
		"port": 8080,
		"api_key": "gateway-key",
		"providers": [
			{"name": "openai", "api_key": "sk-test"},
			{"name": "vertex", "project": "my-project", "region": "europe-west4"}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFilename), []byte(data), 0o600))

	mgr := NewManager(dir)

	cfg, err := mgr.Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "gateway-key", cfg.APIKey)
	assert.Equal(t, DefaultTimeoutSeconds, cfg.TimeoutSeconds, "unset timeout gets the default")
	require.Len(t, cfg.Providers, 2)

	vertex, found := cfg.Find("vertex")
	require.True(t, found)
	assert.Equal(t, "my-project", vertex.Project)
	assert.Equal(t, "europe-west4", vertex.Region)
}

func TestManager_LoadYAML(t *testing.T) {
	dir := t.TempDir()

	data := `
host: 0.0.0.0
port: 9090
providers:
  - name: anthropic
    api_key: ant-test
  - name: gemini
    api_base_url: https://example.test/v1beta
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultYAMLFilename), []byte(data), 0o600))

	mgr := NewManager(dir)

	cfg, err := mgr.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "ant-test", cfg.Providers[0].APIKey)
	assert.Equal(t, "https://example.test/v1beta", cfg.Providers[1].APIBase)
}

func TestManager_YAMLPreferredOverJSON(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFilename), []byte(`{"port": 1111}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultYAMLFilename), []byte(`port: 2222`), 0o600))

	mgr := NewManager(dir)

	cfg, err := mgr.Load()
	require.NoError(t, err)
	assert.Equal(t, 2222, cfg.Port)
}

func TestManager_GetDefaultsWhenMissing(t *testing.T) {
	mgr := NewManager(t.TempDir())

	cfg := mgr.Get()
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultTimeoutSeconds, cfg.TimeoutSeconds)
	assert.Empty(t, cfg.Providers)
}

func TestManager_SaveAndReload(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir)

	cfg := &Config{
		Host:      "127.0.0.1",
		Port:      7070,
		Providers: []Provider{{Name: "openai", APIKey: "sk-test"}},
	}
	require.NoError(t, mgr.Save(cfg))
	assert.True(t, mgr.Exists())

	reloaded, err := NewManager(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, reloaded.Port)
	require.Len(t, reloaded.Providers, 1)
	assert.Equal(t, "sk-test", reloaded.Providers[0].APIKey)
}

func TestConfig_Timeout(t *testing.T) {
	cfg := &Config{TimeoutSeconds: 45}
	assert.Equal(t, 45*time.Second, cfg.Timeout())
}

func TestConfig_ProviderSecrets(t *testing.T) {
	cfg := &Config{
		Providers: []Provider{
			{Name: "openai", APIKey: "sk-1"},
			{Name: "gemini", APIKey: "gm-1"},
		},
	}

	secrets := cfg.ProviderSecrets()
	assert.Equal(t, map[string]string{"openai": "sk-1", "gemini": "gm-1"}, secrets)
}

func TestManager_LoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFilename), []byte(`{not json`), 0o600))

	_, err := NewManager(dir).Load()
	assert.Error(t, err)
}
