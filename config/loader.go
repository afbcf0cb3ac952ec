package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigName is the per-project config filename.
	ProjectConfigName = "siteqa.yaml"
	// UserConfigDir is the user config directory under XDG config home.
	UserConfigDir = "siteqa"
	// UserConfigName is the user-level config filename.
	UserConfigName = "config.yaml"
)

// Loader resolves configuration from layered sources: defaults, then the
// user config file, then the project config file. Later layers win.
type Loader struct {
	// WorkDir is the directory searched for the project config.
	// Defaults to the current working directory.
	WorkDir string
}

// NewLoader creates a Loader rooted at the current working directory.
func NewLoader() *Loader {
	return &Loader{}
}

// Load resolves the effective configuration and validates it.
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	if userPath, err := l.UserConfigPath(); err == nil {
		if layer, err := LoadFromFile(userPath); err == nil {
			config.Merge(layer)
		}
	}

	projectPath, err := l.ProjectConfigPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(projectPath); err == nil {
		layer, err := LoadFromFile(projectPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", projectPath, err)
		}
		config.Merge(layer)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// ProjectConfigPath returns the path of the project config file.
func (l *Loader) ProjectConfigPath() (string, error) {
	dir := l.WorkDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	return filepath.Join(dir, ProjectConfigName), nil
}

// UserConfigPath returns the path of the user config file.
func (l *Loader) UserConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(base, UserConfigDir, UserConfigName), nil
}

// Init writes a default project config file. It refuses to overwrite an
// existing file.
func (l *Loader) Init() (string, error) {
	path, err := l.ProjectConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("config file already exists: %s", path)
	}
	if err := DefaultConfig().SaveToFile(path); err != nil {
		return "", err
	}
	return path, nil
}
