package storage

import (
	"os"
	"path/filepath"
)

// PathManager handles cross-platform path resolution for gemchat storage
type PathManager struct {
	homeDir    string
	gemchatDir string
}

// NewPathManager creates a new path manager with platform-aware defaults
func NewPathManager() *PathManager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir is not available
		homeDir = "."
	}

	return &PathManager{
		homeDir:    homeDir,
		gemchatDir: filepath.Join(homeDir, ".gemchat"),
	}
}

// NewPathManagerAt creates a path manager rooted at an explicit data directory
func NewPathManagerAt(dataDir string) *PathManager {
	pm := NewPathManager()
	if dataDir != "" {
		pm.gemchatDir = dataDir
	}
	return pm
}

// GetGemchatDir returns the main gemchat data directory
// Creates the directory if it doesn't exist
func (pm *PathManager) GetGemchatDir() (string, error) {
	if err := os.MkdirAll(pm.gemchatDir, 0755); err != nil {
		return "", err
	}
	return pm.gemchatDir, nil
}

// GetBlobDatabasePath returns the path for the blob store database
func (pm *PathManager) GetBlobDatabasePath() (string, error) {
	dir, err := pm.GetGemchatDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "gemchat.db"), nil
}

// GetConfigPath returns the path for the main configuration file
func (pm *PathManager) GetConfigPath() (string, error) {
	dir, err := pm.GetGemchatDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// GetLogsDir returns the directory for log files
func (pm *PathManager) GetLogsDir() (string, error) {
	dir, err := pm.GetGemchatDir()
	if err != nil {
		return "", err
	}
	logsDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return "", err
	}
	return logsDir, nil
}

// GetHomeDir returns the user's home directory
func (pm *PathManager) GetHomeDir() string {
	return pm.homeDir
}
