package dupe

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"dupe-go/internal/hashing"
)

// ScanOptions configures the hash producer.
type ScanOptions struct {
	Algorithm string
	Recursive bool
	// Retries is the number of extra attempts after a transient read error.
	Retries    int
	RetryDelay time.Duration
}

// ScanResult counts what a scan did with each file it found.
type ScanResult struct {
	Hashed  int
	Failed  int
	Skipped int
}

// RescanResult counts the outcome of reprocessing failed paths.
type RescanResult struct {
	Corrected    int
	StillFailing int
}

// ScanPath hashes a file, or every file under a directory, and logs each
// result in the ledger. Paths already in the ledger are skipped without being
// read. A file that cannot be read after all retries is logged with a null
// hash so it shows up in FailedPaths.
func (s *DupeService) ScanPath(path *Path, opts ScanOptions) (*ScanResult, error) {
	alg, err := computableAlgorithm(opts.Algorithm)
	if err != nil {
		return nil, err
	}

	files := []*Path{path}
	if path.IsDir() {
		files, err = s.fsmgr.FindFiles(path, opts.Recursive)
		if err != nil {
			return nil, fmt.Errorf("finding files: %w", err)
		}
	}

	s.logger.Info("scan started", "path", path.String(), "files", len(files), "algorithm", alg)
	s.reporter.Start("hashing", len(files))
	defer s.reporter.Finish()

	result := &ScanResult{}
	for _, f := range files {
		if err := s.scanOne(f, alg, opts, result); err != nil {
			return result, err
		}
		s.reporter.Advance(f.String())
	}

	s.logger.Info("scan complete", "hashed", result.Hashed, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

func (s *DupeService) scanOne(f *Path, alg string, opts ScanOptions, result *ScanResult) error {
	// Any row counts, so a path whose stale row outlived its relocation is
	// not reread on every scan.
	known, err := s.ledger.HasObservation(f.String())
	if err != nil {
		return fmt.Errorf("checking ledger for %s: %w", f.String(), err)
	}
	if known {
		result.Skipped++
		return nil
	}

	sum, size, hashErr := s.hashWithRetry(f.String(), alg, opts)
	hash := sql.NullString{String: sum, Valid: hashErr == nil}
	if hashErr != nil {
		s.logger.Warn("hashing failed", "path", f.String(), "error", hashErr)
		if info := f.Info(); info != nil {
			size = info.Size()
		}
	}

	if err := s.ledger.LogFileHash(hash, alg, f.String(), size, s.clock.Now()); err != nil {
		return fmt.Errorf("logging hash for %s: %w", f.String(), err)
	}

	if hashErr != nil {
		result.Failed++
	} else {
		result.Hashed++
		s.logger.Debug("file hashed", "path", f.String(), "hash", sum)
	}
	return nil
}

// RescanFailed re-hashes every path whose attempts all failed and replaces
// the failed observations of those that now succeed.
func (s *DupeService) RescanFailed(opts ScanOptions) (*RescanResult, error) {
	alg, err := computableAlgorithm(opts.Algorithm)
	if err != nil {
		return nil, err
	}

	paths, err := s.ledger.GetFailedFilePaths()
	if err != nil {
		return nil, fmt.Errorf("listing failed paths: %w", err)
	}

	s.reporter.Start("rehashing", len(paths))
	defer s.reporter.Finish()

	result := &RescanResult{}
	for _, p := range paths {
		sum, size, err := s.hashWithRetry(p, alg, opts)
		if err != nil {
			s.logger.Warn("rehashing failed", "path", p, "error", err)
			result.StillFailing++
			s.reporter.Advance(p)
			continue
		}

		corrected, err := s.ledger.CorrectFailedFileHash(sum, alg, p, size, s.clock.Now())
		if err != nil {
			return result, fmt.Errorf("correcting %s: %w", p, err)
		}
		if corrected {
			result.Corrected++
			s.logger.Info("failed hash corrected", "path", p)
		}
		s.reporter.Advance(p)
	}
	return result, nil
}

// hashWithRetry reads path and returns its digest and size. Errors other than
// missing files and permission problems are retried opts.Retries times.
func (s *DupeService) hashWithRetry(path, alg string, opts ScanOptions) (string, int64, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			s.logger.Debug("retrying read", "path", path, "attempt", attempt, "error", lastErr)
			s.sleep(opts.RetryDelay)
		}

		sum, size, err := s.hashOnce(path, alg)
		if err == nil {
			return sum, size, nil
		}
		lastErr = err
		if !transient(err) {
			break
		}
	}
	return "", 0, lastErr
}

func (s *DupeService) hashOnce(path, alg string) (string, int64, error) {
	f, err := s.fsmgr.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return hashing.Sum(alg, f)
}

func transient(err error) bool {
	return !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission)
}

func computableAlgorithm(name string) (string, error) {
	alg, err := hashing.Canonical(name)
	if err != nil {
		return "", err
	}
	if _, err := hashing.New(alg); err != nil {
		return "", err
	}
	return alg, nil
}
