package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDirEnv overrides the default data directory
const DataDirEnv = "COWSHAKE_DIR"

// GetDataDir returns the data directory path
func GetDataDir() string {
	if envDir := os.Getenv(DataDirEnv); envDir != "" {
		return envDir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "cowshake-data")
	}
	return filepath.Join(home, ".cowshake-data")
}

// SocketDir returns (and creates) the directory holding simulated radio sockets
func SocketDir(dataDir string) (string, error) {
	return ensure(filepath.Join(dataDir, "sockets"))
}

// AdvertDir returns (and creates) the directory holding simulated advertising packets
func AdvertDir(dataDir string) (string, error) {
	return ensure(filepath.Join(dataDir, "adverts"))
}

func ensure(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}
