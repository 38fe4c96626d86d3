package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dupe-go/internal/app"
	"dupe-go/internal/config"
	"dupe-go/internal/dupe"
	"dupe-go/internal/progress"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the environment defaults.
func loadConfig() (*config.Config, map[string]string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates a DupeApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Scan", "Resolve").
func newApp(cmd *cobra.Command, operation string) (*app.DupeApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	quiet, _ := cmd.Flags().GetBool("quiet")

	a, err := app.NewDupeApp(cfg, operation, app.Options{Stderr: os.Stderr, Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	a.SetReporter(progress.ForTerminal(os.Stderr, quiet))

	return a, nil
}

// fail records err on the running operation so Close logs it, and passes it on.
func fail(a *app.DupeApp, err error) error {
	a.Fail(err)
	return err
}

// readPassphrase prompts on the terminal, or reads one line from a piped stdin.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func needsPassphrase(cfg *config.Config) bool {
	return cfg.Encryption.Type == "" || cfg.Encryption.Type == "age"
}

var rootCmd = &cobra.Command{
	Use:           "dupe",
	Short:         "Find and set aside duplicate files",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		withKeys, _ := cmd.Flags().GetBool("keys")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostID := uuid.New().String()
		cfg := config.NewConfig(hostID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Host ID: %s\n", hostID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])

		if !withKeys {
			return nil
		}
		passphrase, err := readPassphrase("Snapshot passphrase: ")
		if err != nil {
			return err
		}
		if err := app.InitKeys(cfg, passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Keys written to %s\n", filepath.Dir(cfg.Encryption.PublicKeyPath))
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Generate the snapshot encryption key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		passphrase, err := readPassphrase("Snapshot passphrase: ")
		if err != nil {
			return err
		}
		if err := app.InitKeys(cfg, passphrase); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Keys written to %s\n", filepath.Dir(cfg.Encryption.PublicKeyPath))
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Host ID:    %s\n", cfg.HostID)
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s (%s)\n", cfg.Log.Dir, cfg.Log.Level)
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.Path)
		fmt.Printf("Algorithm:  %s\n", cfg.Scan.Algorithm)
		fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		for _, v := range cfg.Vaults {
			fmt.Printf("Vault:      %s (%s)\n", v.Name, v.Type)
		}
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan [PATH]",
	Short: "Hash files and record them in the ledger",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		algorithm, _ := cmd.Flags().GetString("algorithm")

		a, err := newApp(cmd, "Scan")
		if err != nil {
			return err
		}
		defer a.Close()

		target := "."
		if len(args) > 0 {
			target = args[0]
		}

		result, err := a.Scan(target, recursive, algorithm)
		if err != nil {
			return fail(a, fmt.Errorf("scanning: %w", err))
		}

		fmt.Printf("Hashed %d file(s), skipped %d already known", result.Hashed, result.Skipped)
		if result.Failed > 0 {
			color.New(color.FgYellow).Printf(", %d failed", result.Failed)
		}
		fmt.Println()
		return nil
	},
}

// record command
var recordCmd = &cobra.Command{
	Use:   "record PATH",
	Short: "Record a hash computed elsewhere",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, _ := cmd.Flags().GetString("hash")
		algorithm, _ := cmd.Flags().GetString("algorithm")
		size, _ := cmd.Flags().GetInt64("size")
		failed, _ := cmd.Flags().GetBool("failed")

		if failed {
			hash = ""
		} else if hash == "" {
			return fmt.Errorf("--hash is required unless --failed is set")
		}

		a, err := newApp(cmd, "RecordHash")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RecordHash(hash, algorithm, args[0], size); err != nil {
			return fail(a, fmt.Errorf("recording hash: %w", err))
		}
		return nil
	},
}

// exists command
var existsCmd = &cobra.Command{
	Use:   "exists PATH",
	Short: "Report whether a path is in the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "FileExists")
		if err != nil {
			return err
		}
		defer a.Close()

		exists, err := a.FileExists(args[0])
		if err != nil {
			return fail(a, err)
		}
		fmt.Println(exists)
		return nil
	},
}

// failed command
var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List paths that could not be hashed",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "FailedPaths")
		if err != nil {
			return err
		}
		defer a.Close()

		paths, err := a.FailedPaths()
		if err != nil {
			return fail(a, err)
		}
		if len(paths) == 0 {
			fmt.Println("No failed paths.")
			return nil
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

var rescanFailedCmd = &cobra.Command{
	Use:   "rescan-failed",
	Short: "Retry hashing every failed path",
	RunE: func(cmd *cobra.Command, args []string) error {
		algorithm, _ := cmd.Flags().GetString("algorithm")

		a, err := newApp(cmd, "RescanFailed")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.RescanFailed(algorithm)
		if err != nil {
			return fail(a, fmt.Errorf("rescanning: %w", err))
		}
		fmt.Printf("Corrected %d path(s)", result.Corrected)
		if result.StillFailing > 0 {
			color.New(color.FgYellow).Printf(", %d still failing", result.StillFailing)
		}
		fmt.Println()
		return nil
	},
}

// groups command
var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "List duplicate groups",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		filters, _ := cmd.Flags().GetStringArray("filter")
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp(cmd, "ListDuplicates")
		if err != nil {
			return err
		}
		defer a.Close()

		groups, err := a.Groups(limit, filters, all)
		if err != nil {
			return fail(a, err)
		}
		if len(groups) == 0 {
			fmt.Println("No duplicate groups.")
			return nil
		}

		hashColor := color.New(color.FgCyan)
		for _, g := range groups {
			short := g.Hash
			if len(short) > 12 {
				short = short[:12]
			}
			hashColor.Printf("%s", short)
			fmt.Printf("  %-8s  %d file(s)  %s  first seen %s\n",
				g.Algorithm,
				g.FileCount,
				humanize.Bytes(uint64(max(g.MaxFileSize, 0))),
				g.MinProcessedAt.Local().Format("2006-01-02 15:04:05"),
			)
			for _, p := range g.FilePaths {
				fmt.Printf("    %s\n", p)
			}
		}
		return nil
	},
}

// resolve command
var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Keep one file per duplicate group and relocate the rest",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, "Resolve")
		if err != nil {
			return err
		}
		defer a.Close()

		opts, err := resolveOptions(cmd, a.DefaultResolveOptions())
		if err != nil {
			return fail(a, err)
		}

		result, err := a.Resolve(opts)
		if result != nil {
			printResolveResult(result, opts.DryRun)
		}
		if err != nil {
			return fail(a, fmt.Errorf("resolve: %w", err))
		}
		return nil
	},
}

// resolveOptions overlays the flags the user set on the configured defaults.
func resolveOptions(cmd *cobra.Command, opts dupe.ResolveOptions) (dupe.ResolveOptions, error) {
	flags := cmd.Flags()

	if flags.Changed("dest") {
		opts.Destination, _ = flags.GetString("dest")
	}
	if flags.Changed("algorithm") {
		opts.Algorithm, _ = flags.GetString("algorithm")
	}
	if flags.Changed("preserve-by") {
		s, _ := flags.GetString("preserve-by")
		rule, err := dupe.ParsePreserveRule(s)
		if err != nil {
			return opts, err
		}
		opts.PreserveBy = rule
	}
	if flags.Changed("order-by") {
		s, _ := flags.GetString("order-by")
		key, err := dupe.ParseOrderKey(s)
		if err != nil {
			return opts, err
		}
		opts.OrderBy = key
	}
	if flags.Changed("desc") {
		opts.Descending, _ = flags.GetBool("desc")
	}
	if flags.Changed("max-files") {
		opts.MaxFiles, _ = flags.GetInt("max-files")
	}
	if flags.Changed("copy") {
		opts.Copy, _ = flags.GetBool("copy")
	}
	if flags.Changed("halt-on-error") {
		opts.HaltOnError, _ = flags.GetBool("halt-on-error")
	}
	if flags.Changed("strict-filters") {
		opts.StrictFilters, _ = flags.GetBool("strict-filters")
	}
	opts.RowFilters, _ = flags.GetStringArray("filter")
	opts.GroupFilters, _ = flags.GetStringArray("group-filter")
	opts.Reprocess, _ = flags.GetBool("reprocess")
	opts.DryRun, _ = flags.GetBool("dry-run")

	if opts.Destination == "" {
		return opts, fmt.Errorf("%w: --dest is required (or set resolve.destination)", dupe.ErrInvalidOption)
	}
	return opts, nil
}

func printResolveResult(r *dupe.ResolveResult, dryRun bool) {
	verb := "Relocated"
	if dryRun {
		verb = "Would relocate"
		for _, rel := range r.Relocated {
			fmt.Printf("%s -> %s\n", rel.Source, rel.Destination)
		}
	}

	fmt.Printf("%s %d file(s) from %d group(s), kept %d\n",
		verb, len(r.Relocated), r.Groups, len(r.Preserved))

	warn := color.New(color.FgYellow)
	if len(r.Missing) > 0 {
		warn.Printf("%d file(s) no longer on disk were dropped from the ledger\n", len(r.Missing))
	}
	if r.LimitReached {
		warn.Println("Stopped at the --max-files limit")
	}
	if len(r.Failures) > 0 {
		bad := color.New(color.FgRed)
		bad.Printf("%d file(s) could not be relocated:\n", len(r.Failures))
		for _, f := range r.Failures {
			fmt.Printf("    %s: %v\n", f.Source, f.Err)
		}
	}
	fmt.Printf("Run: %s\n", r.RunID)
}

// moved command
var movedCmd = &cobra.Command{
	Use:   "moved",
	Short: "View relocation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "MovedHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.Moved(limit)
		if err != nil {
			return fail(a, err)
		}
		if len(records) == 0 {
			fmt.Println("No files have been relocated.")
			return nil
		}

		for _, r := range records {
			dest := color.New(color.FgRed).Sprint("failed")
			if r.DestinationPath.Valid {
				dest = r.DestinationPath.String
			}
			fmt.Printf("#%d  %s  %s -> %s\n",
				r.ID,
				r.Timestamp.Local().Format("2006-01-02 15:04:05"),
				r.SourcePath,
				dest,
			)
		}
		return nil
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage ledger snapshots",
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local ledger with the latest vault snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultName, _ := cmd.Flags().GetString("vault")
		force, _ := cmd.Flags().GetBool("force")

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		var passphrase string
		if needsPassphrase(cfg) {
			if passphrase, err = readPassphrase("Snapshot passphrase: "); err != nil {
				return err
			}
		}

		version, err := app.RestoreSnapshot(cfg, vaultName, passphrase, force)
		if err != nil {
			return fmt.Errorf("restoring snapshot: %w", err)
		}
		fmt.Printf("Restored snapshot from %s (%s)\n",
			time.UnixMilli(version).Local().Format("2006-01-02 15:04:05"),
			humanize.Time(time.UnixMilli(version)),
		)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log everything to stderr")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Hide progress bars")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().Bool("keys", false, "Also generate the snapshot encryption keys")
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeysCmd)

	// snapshot subcommands
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotRestoreCmd.Flags().String("vault", "", "Vault to restore from (default: the first configured)")
	snapshotRestoreCmd.Flags().Bool("force", false, "Replace an existing local ledger")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(snapshotCmd)

	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	scanCmd.Flags().StringP("algorithm", "a", "", "Hash algorithm (default: scan.algorithm)")

	rootCmd.AddCommand(recordCmd)
	recordCmd.Flags().String("hash", "", "Hex digest of the file")
	recordCmd.Flags().StringP("algorithm", "a", "SHA256", "Algorithm that produced the digest")
	recordCmd.Flags().Int64("size", 0, "File size in bytes")
	recordCmd.Flags().Bool("failed", false, "Record that the file could not be hashed")

	rootCmd.AddCommand(existsCmd)
	rootCmd.AddCommand(failedCmd)
	rootCmd.AddCommand(rescanFailedCmd)
	rescanFailedCmd.Flags().StringP("algorithm", "a", "", "Hash algorithm (default: scan.algorithm)")

	rootCmd.AddCommand(groupsCmd)
	groupsCmd.Flags().IntP("limit", "n", -1, "Maximum number of groups to show")
	groupsCmd.Flags().StringArray("filter", nil, "Group filter, e.g. \"MaxFileSize > 1048576\" (repeatable)")
	groupsCmd.Flags().Bool("all", false, "Include files without duplicates")

	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringP("dest", "d", "", "Directory that receives relocated files")
	resolveCmd.Flags().StringP("algorithm", "a", "", "Only resolve groups of this algorithm")
	resolveCmd.Flags().String("preserve-by", "", "EarliestProcessed, LongestPath, ShortestPath or LongestName")
	resolveCmd.Flags().String("order-by", "", "FilePaths, EarliestProcessed or LatestProcessed")
	resolveCmd.Flags().Bool("desc", false, "Process groups in descending order")
	resolveCmd.Flags().StringArray("filter", nil, "Row filter, e.g. \"FilePath LIKE '/photos/%'\" (repeatable)")
	resolveCmd.Flags().StringArray("group-filter", nil, "Group filter, e.g. \"MaxFileSize > 1048576\" (repeatable)")
	resolveCmd.Flags().Int("max-files", 0, "Stop after this many relocation attempts")
	resolveCmd.Flags().Bool("copy", false, "Copy instead of move")
	resolveCmd.Flags().Bool("halt-on-error", false, "Stop at the first relocation failure")
	resolveCmd.Flags().Bool("reprocess", false, "Revisit paths with earlier relocation records")
	resolveCmd.Flags().Bool("strict-filters", false, "Reject filters that are not in the supported grammar")
	resolveCmd.Flags().Bool("dry-run", false, "Show what would be relocated without changing anything")

	rootCmd.AddCommand(movedCmd)
	movedCmd.Flags().IntP("limit", "n", 50, "Maximum number of records to show")
}
