package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"dupe-go/internal/config"
	"dupe-go/internal/database"
	"dupe-go/internal/dupe"
	"dupe-go/internal/encryption"
	"dupe-go/internal/fs"
	"dupe-go/internal/vault"
)

// ErrLedgerBehind is returned when a vault holds a newer snapshot than the
// local ledger file.
var ErrLedgerBehind = errors.New("local ledger is behind the vault snapshot")

// Options tunes how a DupeApp is built. The zero value writes warnings to
// os.Stderr and uses the real clock.
type Options struct {
	Stderr  io.Writer
	Verbose bool
	Clock   dupe.Clock
}

// DupeApp is the application layer between the CLI and DupeService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and snapshots the ledger on Close.
type DupeApp struct {
	cfg       *config.Config
	ledger    *database.SQLiteLedger
	vaults    []dupe.Vault
	fsmgr     *fs.OSFilesystemManager
	encryptor dupe.Encryptor
	service   *dupe.DupeService
	op        *Operation
	clock     dupe.Clock
	logger    *slog.Logger
	logCloser io.Closer
}

// NewDupeApp creates a fully wired DupeApp from the given config.
// operation names the CLI command being run (e.g. "Scan", "Resolve").
// The caller must call Close when done.
func NewDupeApp(cfg *config.Config, operation string, opts Options) (*DupeApp, error) {
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Clock == nil {
		opts.Clock = dupe.RealClock{}
	}

	op := NewOperation(operation, opts.Clock.Now())
	logger, logCloser, err := newLogger(cfg.Log, op.ID, opts.Stderr, opts.Verbose)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	a := &DupeApp{
		cfg:       cfg,
		op:        op,
		clock:     opts.Clock,
		logger:    logger,
		logCloser: logCloser,
		fsmgr:     fs.NewOSFilesystemManager(cfg.Scan.Ignore),
	}

	if err := a.open(adapter); err != nil {
		a.logCloser.Close()
		return nil, err
	}

	a.service = dupe.NewDupeService(a.ledger, a.fsmgr, adapter, a.clock, dupe.UUIDGenerator{})
	logger.Debug("operation started", "operation", operation)
	return a, nil
}

func (a *DupeApp) open(logger dupe.Logger) error {
	for _, vc := range a.cfg.Vaults {
		v, err := vault.NewVaultFromConfig(vc)
		if err != nil {
			return fmt.Errorf("creating vault %q: %w", vc.Name, err)
		}
		a.vaults = append(a.vaults, v)
	}

	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	a.encryptor = enc

	ledger, err := database.NewLedgerFromConfig(a.cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}

	if err := a.checkFreshness(); err != nil {
		ledger.Close()
		return err
	}
	a.ledger = ledger
	return nil
}

// checkFreshness refuses to work on a ledger file when a vault holds a
// snapshot newer than the one this file was last synced with.
func (a *DupeApp) checkFreshness() error {
	if a.cfg.Database.Type != "sqlite" {
		return nil
	}
	local, err := readLocalVersion(a.cfg.Database.Path)
	if err != nil {
		return err
	}

	name := SnapshotName(a.cfg)
	for i, v := range a.vaults {
		remote, err := v.GetSnapshotVersion(name)
		if err != nil {
			return fmt.Errorf("checking snapshot version in vault %q: %w", a.cfg.Vaults[i].Name, err)
		}
		if remote > local {
			return fmt.Errorf("%w (local=%d, vault %q=%d): run `dupe snapshot restore`", ErrLedgerBehind, local, a.cfg.Vaults[i].Name, remote)
		}
	}
	return nil
}

// SetReporter installs a progress reporter for scans and resolve runs.
func (a *DupeApp) SetReporter(r dupe.Reporter) {
	a.service.SetReporter(r)
}

// Fail marks the current operation as failed. The ledger is still
// snapshotted on Close if it changed.
func (a *DupeApp) Fail(err error) {
	a.op.Fail()
	a.logger.Error("operation failed", "operation", a.op.Name, "error", err)
}

func (a *DupeApp) scanOptions(algorithm string, recursive bool) dupe.ScanOptions {
	if algorithm == "" {
		algorithm = a.cfg.Scan.Algorithm
	}
	return dupe.ScanOptions{
		Algorithm:  algorithm,
		Recursive:  recursive,
		Retries:    a.cfg.Scan.Retries,
		RetryDelay: a.cfg.Scan.RetryDelay(),
	}
}

// Scan resolves rawPath and hashes the file or the files under the directory.
// An empty algorithm uses the configured one.
func (a *DupeApp) Scan(rawPath string, recursive bool, algorithm string) (*dupe.ScanResult, error) {
	p, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	a.op.MarkMutating()
	return a.service.ScanPath(p, a.scanOptions(algorithm, recursive))
}

// RescanFailed retries every path whose hashing attempts all failed.
func (a *DupeApp) RescanFailed(algorithm string) (*dupe.RescanResult, error) {
	a.op.MarkMutating()
	return a.service.RescanFailed(a.scanOptions(algorithm, false))
}

// RecordHash logs an externally computed hash. The path does not need to
// exist; it is only made absolute.
func (a *DupeApp) RecordHash(hash, algorithm, rawPath string, size int64) error {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	a.op.MarkMutating()
	return a.service.RecordHash(hash, algorithm, absPath, size)
}

// FileExists reports whether rawPath has an observation in the ledger.
func (a *DupeApp) FileExists(rawPath string) (bool, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return false, fmt.Errorf("resolving path: %w", err)
	}
	return a.service.FileExists(absPath)
}

// FailedPaths lists paths whose hashing attempts all failed.
func (a *DupeApp) FailedPaths() ([]string, error) {
	return a.service.FailedPaths()
}

// Groups lists duplicate groups, or every hashed file when all is set.
// Raw filter passthrough follows the resolve.strict_filters setting.
func (a *DupeApp) Groups(limit int, filters []string, all bool) ([]*dupe.DuplicateGroup, error) {
	return a.service.ListDuplicates(limit, filters, a.cfg.Resolve.StrictFilters, all)
}

// Moved returns the most recent relocation records.
func (a *DupeApp) Moved(limit int) ([]*dupe.MovedRecord, error) {
	return a.service.MovedHistory(limit)
}

// DefaultResolveOptions returns resolve options filled from config, for the
// CLI to override with flags.
func (a *DupeApp) DefaultResolveOptions() dupe.ResolveOptions {
	rc := a.cfg.Resolve
	return dupe.ResolveOptions{
		Destination:   rc.Destination,
		Algorithm:     a.cfg.Scan.Algorithm,
		PreserveBy:    dupe.PreserveRule(rc.PreserveBy),
		OrderBy:       dupe.OrderKey(rc.OrderBy),
		Descending:    rc.Descending,
		StrictFilters: rc.StrictFilters,
		MaxFiles:      rc.MaxFiles,
		Copy:          rc.Copy,
		HaltOnError:   rc.HaltOnError,
	}
}

// Resolve runs the duplicate resolver. A relative destination is made
// absolute against the working directory.
func (a *DupeApp) Resolve(opts dupe.ResolveOptions) (*dupe.ResolveResult, error) {
	if opts.Destination != "" && !filepath.IsAbs(opts.Destination) {
		abs, err := filepath.Abs(opts.Destination)
		if err != nil {
			return nil, fmt.Errorf("resolving destination: %w", err)
		}
		opts.Destination = abs
	}
	if !opts.DryRun {
		a.op.MarkMutating()
	}
	return a.service.ResolveDuplicates(opts)
}

// Close snapshots the ledger to every vault if the operation changed it,
// then closes the ledger and the log file. The first error is returned.
func (a *DupeApp) Close() error {
	var errs []error

	if a.op.Mutating && len(a.vaults) > 0 {
		version, err := a.snapshot()
		if err != nil {
			errs = append(errs, err)
		} else if a.cfg.Database.Type == "sqlite" {
			errs = append(errs, writeLocalVersion(a.cfg.Database.Path, version))
		}
	}

	if err := a.ledger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing ledger: %w", err))
	}

	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status, "mutating", a.op.Mutating)
	a.logCloser.Close()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// snapshot copies the ledger, seals it and uploads it to every vault.
// It returns the version stored with the snapshot.
func (a *DupeApp) snapshot() (int64, error) {
	dir, err := os.MkdirTemp("", "dupe-snapshot-*")
	if err != nil {
		return 0, fmt.Errorf("creating snapshot directory: %w", err)
	}
	defer os.RemoveAll(dir)

	plain := filepath.Join(dir, "ledger.db")
	if err := a.ledger.BackupTo(plain); err != nil {
		return 0, fmt.Errorf("copying ledger: %w", err)
	}

	sealed := plain
	if a.encryptor != nil {
		if !a.encryptor.IsConfigured() {
			return 0, fmt.Errorf("snapshot not stored: encryption keys missing, run `dupe config init --keys`")
		}
		sealed = plain + ".age"
		if err := transformFile(plain, sealed, a.encryptor.Encrypt); err != nil {
			return 0, fmt.Errorf("encrypting snapshot: %w", err)
		}
	}

	version := a.clock.Now().UnixMilli()
	name := SnapshotName(a.cfg)
	for i, v := range a.vaults {
		if err := uploadFile(v, name, sealed, version); err != nil {
			return 0, fmt.Errorf("storing snapshot in vault %q: %w", a.cfg.Vaults[i].Name, err)
		}
		a.logger.Info("snapshot stored", "vault", a.cfg.Vaults[i].Name, "name", name, "version", version)
	}
	return version, nil
}

// SnapshotName is the name snapshots of this host's ledger are stored under.
func SnapshotName(cfg *config.Config) string {
	if cfg.HostID == "" {
		return "ledger"
	}
	return cfg.HostID
}

// InitKeys generates the encryption key pair protected by passphrase.
func InitKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return err
	}
	if enc == nil {
		return fmt.Errorf("encryption is disabled (type %q)", cfg.Encryption.Type)
	}
	return enc.Setup(passphrase)
}

// RestoreSnapshot downloads the latest snapshot from the named vault (the
// first vault when vaultName is empty), decrypts it and installs it as the
// ledger file. An existing ledger is only replaced when force is set.
// It returns the restored snapshot's version.
func RestoreSnapshot(cfg *config.Config, vaultName, passphrase string, force bool) (int64, error) {
	if cfg.Database.Type != "sqlite" {
		return 0, fmt.Errorf("snapshot restore needs a sqlite database, not %q", cfg.Database.Type)
	}
	target := cfg.Database.Path
	if _, err := os.Stat(target); err == nil && !force {
		return 0, fmt.Errorf("ledger %s already exists: use --force to replace it", target)
	}

	vc, err := pickVault(cfg.Vaults, vaultName)
	if err != nil {
		return 0, err
	}
	v, err := vault.NewVaultFromConfig(vc)
	if err != nil {
		return 0, fmt.Errorf("creating vault %q: %w", vc.Name, err)
	}
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return 0, fmt.Errorf("creating encryptor: %w", err)
	}

	name := SnapshotName(cfg)
	version, err := v.GetSnapshotVersion(name)
	if err != nil {
		return 0, fmt.Errorf("reading snapshot version: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("creating database directory: %w", err)
	}
	// Work next to the target so the final rename stays on one volume.
	dir, err := os.MkdirTemp(filepath.Dir(target), ".restore-*")
	if err != nil {
		return 0, fmt.Errorf("creating restore directory: %w", err)
	}
	defer os.RemoveAll(dir)

	sealed := filepath.Join(dir, "snapshot")
	if err := downloadFile(v, name, sealed); err != nil {
		return 0, err
	}

	plain := sealed
	if enc != nil {
		dc, err := enc.Unlock(passphrase)
		if err != nil {
			return 0, fmt.Errorf("unlocking private key: %w", err)
		}
		plain = filepath.Join(dir, "ledger.db")
		if err := transformFile(sealed, plain, dc.Decrypt); err != nil {
			return 0, fmt.Errorf("decrypting snapshot: %w", err)
		}
	}

	// Opening the copy checks that it is a ledger this build understands.
	check, err := database.NewSQLiteLedger(plain, nil, database.Options{})
	if err != nil {
		return 0, fmt.Errorf("snapshot is not a usable ledger: %w", err)
	}
	if err := check.Close(); err != nil {
		return 0, fmt.Errorf("closing restored ledger: %w", err)
	}

	if err := os.Rename(plain, target); err != nil {
		return 0, fmt.Errorf("installing restored ledger: %w", err)
	}
	if err := writeLocalVersion(target, version); err != nil {
		return 0, err
	}
	return version, nil
}

func pickVault(vaults []config.VaultConfig, name string) (config.VaultConfig, error) {
	if len(vaults) == 0 {
		return config.VaultConfig{}, fmt.Errorf("no vaults configured")
	}
	if name == "" {
		return vaults[0], nil
	}
	for _, vc := range vaults {
		if vc.Name == name {
			return vc, nil
		}
	}
	return config.VaultConfig{}, fmt.Errorf("no vault named %q", name)
}

// transformFile streams src through fn into a new file at dst.
func transformFile(src, dst string, fn func(io.Reader, io.Writer) error) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if err := fn(in, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func uploadFile(v dupe.Vault, name, path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	return v.PutSnapshot(name, f, info.Size(), version)
}

func downloadFile(v dupe.Vault, name, path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if err := v.GetSnapshot(name, f); err != nil {
		f.Close()
		return fmt.Errorf("downloading snapshot: %w", err)
	}
	return f.Close()
}

// The version of the snapshot a ledger file was last synced with is kept
// in <ledger>.version next to it.
func versionPath(dbPath string) string {
	return dbPath + ".version"
}

func readLocalVersion(dbPath string) (int64, error) {
	data, err := os.ReadFile(versionPath(dbPath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading ledger version: %w", err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing ledger version: %w", err)
	}
	return v, nil
}

func writeLocalVersion(dbPath string, version int64) error {
	if err := os.WriteFile(versionPath(dbPath), []byte(strconv.FormatInt(version, 10)+"\n"), 0644); err != nil {
		return fmt.Errorf("writing ledger version: %w", err)
	}
	return nil
}
