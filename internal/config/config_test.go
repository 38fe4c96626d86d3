package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		HostID:  "test-host-abc",
		BaseDir: "/home/user/.local/share/dupe",
		Log: LogConfig{
			Dir:        "/home/user/.local/share/dupe/log",
			Level:      "debug",
			MaxSizeMB:  20,
			MaxBackups: 3,
			Compress:   true,
		},
		Database: DatabaseConfig{Type: "sqlite", Path: "/home/user/.local/share/dupe/db/ledger.db", BusyTimeoutMs: 1500},
		Scan: ScanConfig{
			Algorithm: "MD5",
			Ignore:    []string{"*.tmp", ".git"},
			Retries:   4,
		},
		Resolve: ResolveConfig{
			Destination: "/dupes",
			PreserveBy:  "LongestPath",
			MaxFiles:    100,
			Copy:        true,
		},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: "/backup/vault"},
			{Type: "s3", Name: "offsite", S3Bucket: "ledgers", S3Endpoint: "http://localhost:9000"},
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/home/user/.local/share/dupe/keys/dupe.pub",
			PrivateKeyPath: "/home/user/.local/share/dupe/keys/dupe.key",
		},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.HostID != original.HostID {
		t.Errorf("HostID = %q, want %q", got.HostID, original.HostID)
	}
	if got.Log != original.Log {
		t.Errorf("Log = %+v, want %+v", got.Log, original.Log)
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if got.Scan.Algorithm != "MD5" || got.Scan.Retries != 4 {
		t.Errorf("Scan = %+v, want algorithm MD5 and 4 retries", got.Scan)
	}
	if len(got.Scan.Ignore) != 2 {
		t.Fatalf("len(Scan.Ignore) = %d, want 2", len(got.Scan.Ignore))
	}
	if got.Resolve != original.Resolve {
		t.Errorf("Resolve = %+v, want %+v", got.Resolve, original.Resolve)
	}
	if len(got.Vaults) != 2 {
		t.Fatalf("len(Vaults) = %d, want 2", len(got.Vaults))
	}
	if got.Vaults[0].FSVaultRoot != "/backup/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", got.Vaults[0].FSVaultRoot, "/backup/vault")
	}
	if got.Vaults[1].S3Endpoint != "http://localhost:9000" {
		t.Errorf("Vault.S3Endpoint = %q, want %q", got.Vaults[1].S3Endpoint, "http://localhost:9000")
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
}

func TestManager_Read_Partial(t *testing.T) {
	input := `
host_id = "h"

[database]
type = "memory"

[resolve]
destination = "/tmp/dupes"
halt_on_error = true
`
	got, err := (&Manager{}).Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Database.Type != "memory" {
		t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
	}
	if !got.Resolve.HaltOnError {
		t.Error("Resolve.HaltOnError = false, want true")
	}
	if got.Scan.Algorithm != "" {
		t.Errorf("Scan.Algorithm = %q, want empty", got.Scan.Algorithm)
	}
}

func TestManager_Read_Invalid(t *testing.T) {
	_, err := (&Manager{}).Read(strings.NewReader("host_id = "))
	if err == nil {
		t.Fatal("Read() expected error for malformed TOML")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("host-1", "/data/dupe")

	if cfg.HostID != "host-1" {
		t.Errorf("HostID = %q, want %q", cfg.HostID, "host-1")
	}
	if cfg.Log.Dir != "/data/dupe/log" {
		t.Errorf("Log.Dir = %q, want %q", cfg.Log.Dir, "/data/dupe/log")
	}
	if cfg.Database.Path != "/data/dupe/db/ledger.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/data/dupe/db/ledger.db")
	}
	if cfg.Scan.Algorithm != "SHA256" {
		t.Errorf("Scan.Algorithm = %q, want %q", cfg.Scan.Algorithm, "SHA256")
	}
	if cfg.Encryption.PublicKeyPath != "/data/dupe/keys/dupe.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/dupe/keys/dupe.pub")
	}
	if cfg.Encryption.PrivateKeyPath != "/data/dupe/keys/dupe.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", cfg.Encryption.PrivateKeyPath, "/data/dupe/keys/dupe.key")
	}
}

func TestDurations(t *testing.T) {
	db := DatabaseConfig{BusyTimeoutMs: 1500}
	if got := db.BusyTimeout(); got != 1500*time.Millisecond {
		t.Errorf("BusyTimeout() = %v, want %v", got, 1500*time.Millisecond)
	}
	scan := ScanConfig{RetryDelayMs: 250}
	if got := scan.RetryDelay(); got != 250*time.Millisecond {
		t.Errorf("RetryDelay() = %v, want %v", got, 250*time.Millisecond)
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "dupe.toml")
		cfg := NewConfig("h1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dupe.toml")
		cfg := NewConfig("h1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "dupe.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.HostID != "read-test" {
			t.Errorf("HostID = %q, want %q", got.HostID, "read-test")
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/dupe.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
