package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	t.Run("uses env vars when set", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "/custom/config.toml")
		t.Setenv(EnvHome, "/custom/dupe")
		t.Setenv(EnvEnvFile, "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		want := map[string]string{
			"config_path": "/custom/config.toml",
			"base_dir":    "/custom/dupe",
			"log_dir":     filepath.Join("/custom/dupe", "log"),
			"db_path":     filepath.Join("/custom/dupe", "db", "ledger.db"),
		}
		for k, v := range want {
			if defaults[k] != v {
				t.Errorf("%s = %q, want %q", k, defaults[k], v)
			}
		}
	})

	t.Run("falls back to home dir defaults", func(t *testing.T) {
		t.Setenv(EnvConfigPath, "")
		t.Setenv(EnvHome, "")
		t.Setenv(EnvEnvFile, "")

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}

		homeDir, _ := os.UserHomeDir()

		wantConfig := filepath.Join(homeDir, ".config", "dupe.toml")
		if defaults["config_path"] != wantConfig {
			t.Errorf("config_path = %q, want %q", defaults["config_path"], wantConfig)
		}

		wantBase := filepath.Join(homeDir, ".local", "share", "dupe")
		if defaults["base_dir"] != wantBase {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], wantBase)
		}
	})

	t.Run("loads the env file", func(t *testing.T) {
		envFile := filepath.Join(t.TempDir(), "dupe.env")
		if err := os.WriteFile(envFile, []byte("DUPE_HOME=/from/envfile\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv(EnvEnvFile, envFile)
		t.Setenv(EnvConfigPath, "/custom/config.toml")
		// Unset rather than empty so the file can supply it; t.Setenv restores it.
		t.Setenv(EnvHome, "")
		os.Unsetenv(EnvHome)

		defaults, err := GetDefaults()
		if err != nil {
			t.Fatalf("GetDefaults() error = %v", err)
		}
		if defaults["base_dir"] != "/from/envfile" {
			t.Errorf("base_dir = %q, want %q", defaults["base_dir"], "/from/envfile")
		}
	})

	t.Run("missing env file", func(t *testing.T) {
		t.Setenv(EnvEnvFile, filepath.Join(t.TempDir(), "nope.env"))
		if _, err := GetDefaults(); err == nil {
			t.Error("GetDefaults() expected error for a missing DUPE_ENV_FILE")
		}
	})
}
