package dupe

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"dupe-go/internal/filter"
	"dupe-go/internal/hashing"
)

// DupeService is the orchestration layer that coordinates the ledger and the
// filesystem to perform the operations needed by the CLI.
type DupeService struct {
	ledger   Ledger
	fsmgr    FilesystemManager
	logger   Logger
	clock    Clock
	idgen    IDGenerator
	reporter Reporter
	sleep    func(time.Duration)
}

// NewDupeService creates a new DupeService with the provided dependencies.
// Progress is discarded until a reporter is set with SetReporter.
func NewDupeService(ledger Ledger, fsmgr FilesystemManager, logger Logger, clock Clock, idgen IDGenerator) *DupeService {
	return &DupeService{
		ledger:   ledger,
		fsmgr:    fsmgr,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		reporter: NopReporter{},
		sleep:    time.Sleep,
	}
}

// SetReporter installs a progress reporter. A nil reporter discards progress.
func (s *DupeService) SetReporter(r Reporter) {
	if r == nil {
		r = NopReporter{}
	}
	s.reporter = r
}

// SetSleep replaces the function used to wait between hashing retries.
func (s *DupeService) SetSleep(sleep func(time.Duration)) {
	s.sleep = sleep
}

// RecordHash logs an externally computed observation. An empty hash records a
// failed attempt. Recording a path that is already in the ledger does nothing.
func (s *DupeService) RecordHash(hash, algorithm, filePath string, fileSize int64) error {
	name, err := hashing.Canonical(algorithm)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(filePath) {
		return fmt.Errorf("%w: path is not absolute: %s", ErrInvalidOption, filePath)
	}

	h := sql.NullString{String: hash, Valid: hash != ""}
	if err := s.ledger.LogFileHash(h, name, filePath, fileSize, s.clock.Now()); err != nil {
		return fmt.Errorf("recording hash: %w", err)
	}

	s.logger.Debug("hash recorded", "path", filePath, "algorithm", name, "failed", !h.Valid)
	return nil
}

// FileExists reports whether path has an observation in the ledger.
func (s *DupeService) FileExists(path string) (bool, error) {
	exists, err := s.ledger.FileExistsInDatabase(path)
	if err != nil {
		return false, fmt.Errorf("checking ledger: %w", err)
	}
	return exists, nil
}

// FailedPaths returns every path whose hashing attempts all failed.
func (s *DupeService) FailedPaths() ([]string, error) {
	paths, err := s.ledger.GetFailedFilePaths()
	if err != nil {
		return nil, fmt.Errorf("listing failed paths: %w", err)
	}
	return paths, nil
}

// duplicatesOnly restricts a listing to groups with more than one live file.
const duplicatesOnly = "FileCount > 1"

// ListDuplicates returns duplicate groups matching the group-scope filters.
// A limit of -1 returns every group. Only groups with more than one file are
// listed unless all is set, in which case every hashed file shows up as a
// group of its own.
func (s *DupeService) ListDuplicates(limit int, filters []string, strict, all bool) ([]*DuplicateGroup, error) {
	if !all {
		filters = append([]string{duplicatesOnly}, filters...)
	}
	compiled, err := filter.NewCompiler(strict).Compile(filter.GroupScope, filters)
	if err != nil {
		return nil, err
	}
	s.warnRawFilters(compiled)

	groups, err := s.ledger.GetFileHashes(limit, compiled)
	if err != nil {
		return nil, fmt.Errorf("listing duplicate groups: %w", err)
	}
	return groups, nil
}

// MovedHistory returns the most recent relocation records, newest first.
func (s *DupeService) MovedHistory(limit int) ([]*MovedRecord, error) {
	records, err := s.ledger.GetMovedFiles(limit)
	if err != nil {
		return nil, fmt.Errorf("listing moved files: %w", err)
	}
	return records, nil
}

func (s *DupeService) warnRawFilters(c filter.Compiled) {
	for _, raw := range c.Raw {
		s.logger.Warn("filter passed through as raw SQL", "clause", raw)
	}
}

// accessible reports whether path can currently be stat'ed. Problems are
// logged at warn level.
func (s *DupeService) accessible(path string) bool {
	_, err := s.fsmgr.Stat(path)
	if err == nil {
		return true
	}
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("file missing, skipping", "path", path)
	} else {
		s.logger.Warn("file not accessible, skipping", "path", path, "error", err)
	}
	return false
}
