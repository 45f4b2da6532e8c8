// pkg/config/config.go - install session configuration for appdeploy.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Configuration holds the declared package identity and install choices fed
// to the manifest resolver. It is what the presentation layer collects from
// the user plus the packager-declared identity fields.
type Configuration struct {
	AppName               string `yaml:"AppName"`
	AppVersion            string `yaml:"AppVersion"`
	Publisher             string `yaml:"Publisher"`
	PackageID             string `yaml:"PackageID"`
	PayloadRoot           string `yaml:"PayloadRoot"`
	ExeRelativePath       string `yaml:"ExeRelativePath"`
	IconRelativePath      string `yaml:"IconRelativePath"`
	AssociationExtension  string `yaml:"AssociationExtension"`
	RequestedScope        string `yaml:"RequestedScope"` // "machine" or "user"
	CreateDesktopShortcut bool   `yaml:"CreateDesktopShortcut"`
	SupportedArch         string `yaml:"SupportedArch"` // comma-separated, e.g. "x64,arm64"
	LogLevel              string `yaml:"LogLevel"`
}

// SupportedArchList returns the SupportedArch field split into entries.
func (c *Configuration) SupportedArchList() []string {
	var out []string
	for _, a := range strings.Split(c.SupportedArch, ",") {
		if trimmed := strings.TrimSpace(a); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// LoadConfig loads the configuration from a YAML file.
func LoadConfig(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file %s: %w", path, err)
	}

	config := GetDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing configuration file %s: %w", path, err)
	}

	return config, nil
}

// SaveConfig saves the current configuration to a YAML file.
func SaveConfig(config *Configuration, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("serializing configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating configuration directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing configuration file: %w", err)
	}

	return nil
}

// GetDefaultConfig provides default configuration values.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		RequestedScope:        "user",
		CreateDesktopShortcut: false,
		SupportedArch:         "x64,arm64",
		LogLevel:              "INFO",
	}
}
