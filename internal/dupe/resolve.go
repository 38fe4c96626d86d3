package dupe

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"dupe-go/internal/filter"
	"dupe-go/internal/hashing"
)

// PreserveRule selects which member of a duplicate group stays in place.
type PreserveRule string

const (
	PreserveEarliestProcessed PreserveRule = "EarliestProcessed"
	PreserveLongestPath       PreserveRule = "LongestPath"
	PreserveShortestPath      PreserveRule = "ShortestPath"
	PreserveLongestName       PreserveRule = "LongestName"
)

// ParsePreserveRule validates a preserve rule name (case-insensitive).
func ParsePreserveRule(s string) (PreserveRule, error) {
	for _, r := range []PreserveRule{PreserveEarliestProcessed, PreserveLongestPath, PreserveShortestPath, PreserveLongestName} {
		if strings.EqualFold(string(r), s) {
			return r, nil
		}
	}
	return "", invalidOption("preserve rule", s)
}

// ResolveOptions configures one resolve run.
type ResolveOptions struct {
	// Destination is the absolute root under which relocated files are mirrored.
	Destination string
	Algorithm   string
	PreserveBy  PreserveRule
	OrderBy     OrderKey
	Descending  bool
	// RowFilters constrain individual observations; GroupFilters constrain groups.
	RowFilters   []string
	GroupFilters []string
	// StrictFilters rejects clauses that would be passed through as raw SQL.
	StrictFilters bool
	// MaxFiles caps relocation attempts for the run. Zero or less is unlimited.
	MaxFiles int
	// Copy leaves sources in place instead of moving them.
	Copy bool
	// HaltOnError stops the run at the first relocation failure.
	HaltOnError bool
	// Reprocess revisits paths that already have MovedFile records.
	Reprocess bool
	// DryRun plans destinations without touching the filesystem or the ledger.
	DryRun bool
}

// Relocation is the outcome for one non-preserved file.
type Relocation struct {
	Hash        string
	Source      string
	Destination string
	Err         error
}

// ResolveResult summarises a resolve run.
type ResolveResult struct {
	RunID        string
	Groups       int
	Preserved    []string
	Relocated    []Relocation
	Failures     []Relocation
	Missing      []string
	LimitReached bool
}

// ResolveDuplicates keeps one file of every duplicate group in place and
// relocates the others under opts.Destination, recording each outcome in the
// ledger. The run is sequential: one group, then one file at a time.
//
// A failed relocation is logged with a null destination so it is not retried
// in the same run. With HaltOnError the run stops there; otherwise the
// failure is collected and the run continues. Ledger errors always stop the
// run. The returned result reflects the work done even when err is non-nil.
func (s *DupeService) ResolveDuplicates(opts ResolveOptions) (*ResolveResult, error) {
	opts, rowFilters, groupFilters, err := s.prepareResolve(opts)
	if err != nil {
		return nil, err
	}

	result := &ResolveResult{RunID: s.idgen.New()}
	s.logger.Info("resolve started",
		"run", result.RunID,
		"destination", opts.Destination,
		"algorithm", opts.Algorithm,
		"preserve_by", string(opts.PreserveBy),
		"copy", opts.Copy,
		"reprocess", opts.Reprocess,
		"dry_run", opts.DryRun,
	)

	groups, err := s.ledger.FindDuplicateGroups(DuplicateQuery{
		Algorithm:    opts.Algorithm,
		RowFilters:   rowFilters,
		GroupFilters: groupFilters,
		OrderBy:      opts.OrderBy,
		Descending:   opts.Descending,
		Reprocess:    opts.Reprocess,
	})
	if err != nil {
		return nil, fmt.Errorf("finding duplicate groups: %w", err)
	}

	run := &resolveRun{
		opts:     opts,
		result:   result,
		handled:  make(map[string]bool),
		reserved: make(map[string]bool),
	}

	s.reporter.Start("resolving", -1)
	defer s.reporter.Finish()

	for _, group := range groups {
		if run.limitReached() {
			result.LimitReached = true
			break
		}

		members, err := s.ledger.FindGroupMembers(MemberQuery{
			Hash:      group.Hash,
			Algorithm: group.Algorithm,
			Filters:   rowFilters,
			Reprocess: opts.Reprocess,
		})
		if err != nil {
			return result, fmt.Errorf("finding members of %s: %w", group.Hash, err)
		}

		if err := s.resolveGroup(run, group, members); err != nil {
			return result, err
		}
	}

	s.logger.Info("resolve complete",
		"run", result.RunID,
		"groups", result.Groups,
		"relocated", len(result.Relocated),
		"failed", len(result.Failures),
		"missing", len(result.Missing),
	)
	return result, nil
}

// resolveRun is the mutable state of one ResolveDuplicates call.
type resolveRun struct {
	opts     ResolveOptions
	result   *ResolveResult
	attempts int
	// handled holds sources already relocated (or attempted) in this run.
	handled map[string]bool
	// reserved holds destinations claimed in this run, for dry runs where
	// nothing reaches the disk.
	reserved map[string]bool
}

func (r *resolveRun) limitReached() bool {
	return r.opts.MaxFiles > 0 && r.attempts >= r.opts.MaxFiles
}

func (s *DupeService) prepareResolve(opts ResolveOptions) (ResolveOptions, filter.Compiled, filter.Compiled, error) {
	var none filter.Compiled

	if opts.Destination == "" || !filepath.IsAbs(opts.Destination) {
		return opts, none, none, fmt.Errorf("%w: destination must be an absolute path: %q", ErrInvalidOption, opts.Destination)
	}
	opts.Destination = filepath.Clean(opts.Destination)

	alg, err := hashing.Canonical(opts.Algorithm)
	if err != nil {
		return opts, none, none, err
	}
	opts.Algorithm = alg

	if opts.PreserveBy == "" {
		opts.PreserveBy = PreserveEarliestProcessed
	}
	if opts.PreserveBy, err = ParsePreserveRule(string(opts.PreserveBy)); err != nil {
		return opts, none, none, err
	}

	if opts.OrderBy == "" {
		opts.OrderBy = OrderByFilePaths
	}
	if opts.OrderBy, err = ParseOrderKey(string(opts.OrderBy)); err != nil {
		return opts, none, none, err
	}

	compiler := filter.NewCompiler(opts.StrictFilters)
	rowFilters, err := compiler.Compile(filter.RowScope, opts.RowFilters)
	if err != nil {
		return opts, none, none, fmt.Errorf("compiling row filters: %w", err)
	}
	groupFilters, err := compiler.Compile(filter.GroupScope, opts.GroupFilters)
	if err != nil {
		return opts, none, none, fmt.Errorf("compiling group filters: %w", err)
	}
	s.warnRawFilters(rowFilters)
	s.warnRawFilters(groupFilters)

	return opts, rowFilters, groupFilters, nil
}

func (s *DupeService) resolveGroup(run *resolveRun, group *DuplicateGroup, members []*GroupMember) error {
	present := make([]*GroupMember, 0, len(members))
	for _, m := range members {
		if run.handled[m.FilePath] {
			continue
		}
		if !s.accessible(m.FilePath) {
			run.result.Missing = append(run.result.Missing, m.FilePath)
			continue
		}
		present = append(present, m)
	}
	if len(present) < 2 {
		s.logger.Debug("group has nothing to relocate", "hash", group.Hash, "present", len(present))
		return nil
	}

	run.result.Groups++
	keep := selectPreserved(present, run.opts.PreserveBy)
	run.result.Preserved = append(run.result.Preserved, present[keep].FilePath)
	s.logger.Debug("preserving file", "hash", group.Hash, "path", present[keep].FilePath)

	for i, m := range present {
		if i == keep {
			continue
		}
		if run.limitReached() {
			run.result.LimitReached = true
			return nil
		}
		run.attempts++
		run.handled[m.FilePath] = true

		if err := s.relocateMember(run, group, m); err != nil {
			return err
		}
		s.reporter.Advance(m.FilePath)
	}
	return nil
}

// relocateMember moves or copies one file and records the outcome.
// It returns an error only when the run must stop.
func (s *DupeService) relocateMember(run *resolveRun, group *DuplicateGroup, m *GroupMember) error {
	dest, relocErr := s.relocate(run, m.FilePath)
	rel := Relocation{Hash: group.Hash, Source: m.FilePath, Destination: dest, Err: relocErr}

	if run.opts.DryRun {
		if relocErr != nil {
			run.result.Failures = append(run.result.Failures, rel)
			return nil
		}
		run.result.Relocated = append(run.result.Relocated, rel)
		return nil
	}

	now := s.clock.Now()

	if relocErr != nil {
		s.logger.Error("relocation failed", "source", m.FilePath, "destination", dest, "error", relocErr)
		run.result.Failures = append(run.result.Failures, rel)

		if err := s.ledger.LogMovedFile(group.Hash, group.Algorithm, m.FilePath, sql.NullString{}, now); err != nil {
			return fmt.Errorf("recording failed relocation of %s: %w", m.FilePath, err)
		}
		if run.opts.HaltOnError {
			return fmt.Errorf("relocating %s: %w", m.FilePath, relocErr)
		}
		return nil
	}

	if err := s.ledger.LogMovedFile(group.Hash, group.Algorithm, m.FilePath, sql.NullString{String: dest, Valid: true}, now); err != nil {
		return fmt.Errorf("recording relocation of %s to %s: %w", m.FilePath, dest, err)
	}

	run.result.Relocated = append(run.result.Relocated, rel)
	s.logger.Info("file relocated", "source", m.FilePath, "destination", dest, "copy", run.opts.Copy)
	return nil
}

// relocate computes a free destination and performs the move or copy.
// The destination is returned even on failure so it can be reported.
func (s *DupeService) relocate(run *resolveRun, src string) (string, error) {
	dest, err := MirrorPath(run.opts.Destination, src)
	if err != nil {
		return "", err
	}

	dest, err = s.freeDestination(dest, run.reserved)
	if err != nil {
		return dest, err
	}
	run.reserved[dest] = true

	if run.opts.DryRun {
		return dest, nil
	}

	if err := s.fsmgr.MkdirAll(filepath.Dir(dest)); err != nil {
		return dest, fmt.Errorf("creating destination directory: %w", err)
	}

	if run.opts.Copy {
		err = s.fsmgr.Copy(src, dest)
	} else {
		err = s.fsmgr.Move(src, dest)
	}
	return dest, err
}

// freeDestination returns dest, or dest with the first numeric suffix that
// neither exists on disk nor was reserved earlier in the run.
func (s *DupeService) freeDestination(dest string, reserved map[string]bool) (string, error) {
	candidate := dest
	for n := 1; ; n++ {
		taken, err := s.pathTaken(candidate, reserved)
		if err != nil {
			return candidate, err
		}
		if !taken {
			return candidate, nil
		}
		candidate = SuffixedPath(dest, n)
	}
}

func (s *DupeService) pathTaken(path string, reserved map[string]bool) (bool, error) {
	if reserved[path] {
		return true, nil
	}
	_, err := s.fsmgr.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking destination %s: %w", path, err)
}

// selectPreserved returns the index of the member to keep. Ties go to the
// member that comes first.
func selectPreserved(members []*GroupMember, rule PreserveRule) int {
	best := 0
	for i := 1; i < len(members); i++ {
		if preferred(rule, members[i], members[best]) {
			best = i
		}
	}
	return best
}

// preferred reports whether a strictly beats b under rule.
func preferred(rule PreserveRule, a, b *GroupMember) bool {
	switch rule {
	case PreserveLongestPath:
		return utf8.RuneCountInString(a.FilePath) > utf8.RuneCountInString(b.FilePath)
	case PreserveShortestPath:
		return utf8.RuneCountInString(a.FilePath) < utf8.RuneCountInString(b.FilePath)
	case PreserveLongestName:
		return utf8.RuneCountInString(filepath.Base(a.FilePath)) > utf8.RuneCountInString(filepath.Base(b.FilePath))
	default:
		return a.ProcessedAt.Before(b.ProcessedAt)
	}
}
