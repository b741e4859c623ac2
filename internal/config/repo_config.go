package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// RepoConfigName is the override file kept inside the git directory
const RepoConfigName = "gitdeck.json"

// RepoConfig holds per-repository overrides. Unset fields defer to the user
// config.
type RepoConfig struct {
	Watcher            *bool    `json:"watcher,omitempty"`
	CredentialMethods  []string `json:"credentialMethods,omitempty"`
	MessageLengthLimit *int     `json:"messageLengthLimit,omitempty"`
	LogLimit           *int     `json:"logLimit,omitempty"`
}

func repoConfigPath(gitDir string) string {
	return filepath.Join(gitDir, RepoConfigName)
}

// GetRepoConfig reads the repository overrides
func GetRepoConfig(gitDir string) (*RepoConfig, error) {
	data, err := os.ReadFile(repoConfigPath(gitDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &RepoConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read repo config: %w", err)
	}

	var config RepoConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse repo config: %w", err)
	}
	return &config, nil
}

// SaveRepoConfig writes the repository overrides
func SaveRepoConfig(gitDir string, config *RepoConfig) error {
	if _, err := os.Stat(gitDir); err != nil {
		return fmt.Errorf("git directory does not exist: %w", err)
	}
	configJSON, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(repoConfigPath(gitDir), configJSON, 0o600)
}

// SetRepoWatcher turns file notifications on or off for one repository
func SetRepoWatcher(gitDir string, enabled bool) error {
	config, err := GetRepoConfig(gitDir)
	if err != nil {
		config = &RepoConfig{}
	}
	config.Watcher = &enabled
	return SaveRepoConfig(gitDir, config)
}

// SetRepoCredentialMethods overrides the credential order for one repository
func SetRepoCredentialMethods(gitDir string, methods []string) error {
	for _, m := range methods {
		if !slices.Contains(CredentialMethods, m) {
			return fmt.Errorf("unknown credential method %q", m)
		}
	}
	config, err := GetRepoConfig(gitDir)
	if err != nil {
		config = &RepoConfig{}
	}
	config.CredentialMethods = methods
	return SaveRepoConfig(gitDir, config)
}

// settings renders the set fields as a nested viper map
func (c *RepoConfig) settings() map[string]any {
	out := map[string]any{}
	section := func(name string) map[string]any {
		m, ok := out[name].(map[string]any)
		if !ok {
			m = map[string]any{}
			out[name] = m
		}
		return m
	}
	if c.Watcher != nil {
		section("watcher")["enabled"] = *c.Watcher
	}
	if len(c.CredentialMethods) > 0 {
		section("credentials")["methods"] = c.CredentialMethods
	}
	if c.MessageLengthLimit != nil {
		section("log")["message_length_limit"] = *c.MessageLengthLimit
	}
	if c.LogLimit != nil {
		section("log")["limit"] = *c.LogLimit
	}
	return out
}
