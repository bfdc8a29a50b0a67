package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandConfigDir expands a leading ~ and returns the absolute path.
// An empty path stays empty so callers can fall back to their default.
func ExpandConfigDir(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := GetUserPath()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}

	return filepath.Abs(path)
}

// GetUserPath returns the user's home directory path across all platforms
func GetUserPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Clean(homeDir), nil
}

// EnsureDir creates dir and its parents with perm. Directories that
// already exist keep their mode.
func EnsureDir(dir string, perm os.FileMode) error {
	if err := os.MkdirAll(dir, perm); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// EnsureParentDir creates the directory that will hold file
func EnsureParentDir(file string, perm os.FileMode) error {
	return EnsureDir(filepath.Dir(file), perm)
}
