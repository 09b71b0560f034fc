package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds optional defaults loaded from ~/.config/opsctl/config.yaml.
type Config struct {
	DefaultProfile    string `yaml:"default_profile"`
	DefaultRegion     string `yaml:"default_region"`
	DefaultKubeconfig string `yaml:"default_kubeconfig"`
	DefaultNamespace  string `yaml:"default_namespace"`
}

// Load reads the config file. Returns zero-value Config if the file doesn't exist.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return &Config{}, nil
	}

	path := filepath.Join(home, ".config", "opsctl", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Merge applies CLI flag overrides. Flags take precedence over config defaults.
func (c *Config) Merge(profile, region string) (string, string) {
	p := c.DefaultProfile
	if profile != "" {
		p = profile
	}
	r := c.DefaultRegion
	if region != "" {
		r = region
	}
	return p, r
}

// Kubeconfig resolves the kubeconfig path: flag, then config file, then empty
// (client-go default loading rules apply).
func (c *Config) Kubeconfig(flag string) string {
	if flag != "" {
		return flag
	}
	return c.DefaultKubeconfig
}

// Namespace resolves the namespace, defaulting to "default".
func (c *Config) Namespace(flag string) string {
	if flag != "" {
		return flag
	}
	if c.DefaultNamespace != "" {
		return c.DefaultNamespace
	}
	return "default"
}
