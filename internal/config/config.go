package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = 6970
	DefaultHost           = "127.0.0.1"
	DefaultTimeoutSeconds = 120
	DefaultConfigFilename = "config.json"
	DefaultYAMLFilename   = "config.yaml"
)

// Provider configures one upstream provider: credentials, an optional
// endpoint override, and Vertex project/region placement.
type Provider struct {
	Name    string `json:"name" yaml:"name"`
	APIBase string `json:"api_base_url,omitempty" yaml:"api_base_url,omitempty"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Project string `json:"project,omitempty" yaml:"project,omitempty"`
	Region  string `json:"region,omitempty" yaml:"region,omitempty"`
}

type Config struct {
	Host           string     `json:"host,omitempty" yaml:"host,omitempty"`
	Port           int        `json:"port,omitempty" yaml:"port,omitempty"`
	APIKey         string     `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	TimeoutSeconds int        `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	Providers      []Provider `json:"providers" yaml:"providers"`
}

// Timeout returns the per-call upper-bound timeout handlers pass down
// to the transport.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ProviderSecrets returns the provider-to-key map the credential source
// is seeded with.
func (c *Config) ProviderSecrets() map[string]string {
	secrets := make(map[string]string, len(c.Providers))
	for _, p := range c.Providers {
		secrets[p.Name] = p.APIKey
	}

	return secrets
}

// Find returns the configuration block for a provider, if present.
func (c *Config) Find(name string) (*Provider, bool) {
	for i := range c.Providers {
		if c.Providers[i].Name == name {
			return &c.Providers[i], true
		}
	}

	return nil, false
}

// Manager loads and holds the active configuration. The loaded snapshot
// is stored atomically so concurrent readers never see a partial
// config.
type Manager struct {
	baseDir     string
	configValue atomic.Value
}

func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir}
}

// Load reads config.yaml if present, otherwise config.json, applies
// defaults, and stores the snapshot.
func (m *Manager) Load() (*Config, error) {
	path := m.activePath()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("unmarshal json config: %w", err)
		}
	}

	applyDefaults(&cfg)
	m.configValue.Store(&cfg)

	return &cfg, nil
}

// Get returns the current snapshot, loading it on first use. A missing
// or broken config file yields defaults so read paths never fail.
func (m *Manager) Get() *Config {
	if v := m.configValue.Load(); v != nil {
		return v.(*Config)
	}

	cfg, err := m.Load()
	if err != nil {
		cfg = &Config{}
		applyDefaults(cfg)
	}

	return cfg
}

// Save writes the config as JSON and stores it as the active snapshot.
func (m *Manager) Save(cfg *Config) error {
	path := filepath.Join(m.baseDir, DefaultConfigFilename)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	m.configValue.Store(cfg)

	return nil
}

func (m *Manager) GetPath() string {
	return m.activePath()
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.activePath())
	return err == nil
}

func (m *Manager) activePath() string {
	yamlPath := filepath.Join(m.baseDir, DefaultYAMLFilename)
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}

	return filepath.Join(m.baseDir, DefaultConfigFilename)
}

func applyDefaults(cfg *Config) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}

	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = DefaultTimeoutSeconds
	}
}
