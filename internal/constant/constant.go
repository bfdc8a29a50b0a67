package constant

import (
	"path/filepath"

	"github.com/tingly-dev/nodepack/pkg/fs"
)

const ConfigDirName = ".nodepack"

const ConfigFileName = "config.json"

const DBDirName = "db"

const DBFileName = "content.db" // SQLite content store

const (
	LogDirName = "log"

	// LogFileName is the rotated application log
	LogFileName = "nodepack.log"

	// ErrorLogFileName collects failed export requests
	ErrorLogFileName = "failed_exports.log"
)

const (
	DefaultServerPort = 12680

	// DefaultInlineBinaryLimit is the largest binary read into memory before encoding.
	// Larger payloads are streamed from the store.
	DefaultInlineBinaryLimit = int64(64 * 1024)

	// DefaultExportTimeout in seconds, 0 means no timeout
	DefaultExportTimeout = 0

	// DefaultMemoryLogEntries is the capacity of the in-memory request log
	DefaultMemoryLogEntries = 1000
)

// GetConfDir returns the config directory path (default: ~/.nodepack)
func GetConfDir() string {
	homeDir, err := fs.GetUserPath()
	if err != nil {
		return ConfigDirName
	}
	return filepath.Join(homeDir, ConfigDirName)
}

// GetLogDir returns the log directory path
func GetLogDir(baseDir string) string {
	return filepath.Join(baseDir, LogDirName)
}

// GetDBDir returns the directory holding the content database
func GetDBDir(baseDir string) string {
	return filepath.Join(baseDir, DBDirName)
}

func GetDBFile(baseDir string) string {
	return filepath.Join(GetDBDir(baseDir), DBFileName)
}
