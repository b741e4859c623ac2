package tui

import (
	"os"
	"path/filepath"
)

// GetLogFilePath returns the log file location: GITDECK_LOG_FILE when set,
// otherwise ~/.gitdeck/logs/gitdeck.log
func GetLogFilePath() string {
	if customPath := os.Getenv("GITDECK_LOG_FILE"); customPath != "" {
		return customPath
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "gitdeck.log"
	}
	return filepath.Join(homeDir, ".gitdeck", "logs", "gitdeck.log")
}
