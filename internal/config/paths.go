package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// LogDirectory returns the directory for s3fetch log files.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\s3fetch\logs
//   - Unix: ~/.config/s3fetch/logs
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "s3fetch-logs")
			}
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, "s3fetch", "logs")
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), "s3fetch-logs")
		}
		return filepath.Join(homeDir, ".config", "s3fetch", "logs")
	}
	return filepath.Join(configDir, "s3fetch", "logs")
}

// ResolveLogFile turns a configured log file name into a path. Bare file
// names are placed in LogDirectory; paths are used as given.
func ResolveLogFile(name string) string {
	if name == "" {
		return ""
	}
	if filepath.Base(name) == name {
		return filepath.Join(LogDirectory(), name)
	}
	return name
}
