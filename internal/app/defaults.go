package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Environment variables read by GetDefaults.
const (
	EnvConfigPath = "DUPE_CONFIG_PATH"
	EnvHome       = "DUPE_HOME"
	EnvEnvFile    = "DUPE_ENV_FILE"
)

// GetDefaults returns application default paths, checking environment variables first.
// Before anything is read, a dotenv file is loaded: DUPE_ENV_FILE when set
// (it must exist), otherwise .env in the working directory if present.
// Variables already in the environment are never overridden.
//
// Environment variables:
//   - DUPE_CONFIG_PATH: config file location (default: ~/.config/dupe.toml)
//   - DUPE_HOME: base directory for dupe data (default: ~/.local/share/dupe)
func GetDefaults() (map[string]string, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"db_path":     filepath.Join(baseDir, "db", "ledger.db"),
	}, nil
}

func loadEnvFile() error {
	if path := os.Getenv(EnvEnvFile); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
		return nil
	}

	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "dupe.toml"), nil
}

// getBaseDir falls back to the XDG default ~/.local/share/dupe.
func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "dupe"), nil
}
