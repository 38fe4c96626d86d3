package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dupe-go/internal/database/migrations"
	"dupe-go/internal/dupe"
	"dupe-go/internal/filter"
	"dupe-go/internal/hashing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteLedger implements dupe.Ledger using SQLite.
type SQLiteLedger struct {
	db     *sql.DB
	path   string
	logger dupe.Logger
}

var _ dupe.Ledger = (*SQLiteLedger)(nil)

// Options tune the connection. The zero value uses engine defaults.
type Options struct {
	// BusyTimeout is how long a statement waits on a locked database before
	// failing with dupe.ErrLocked.
	BusyTimeout time.Duration
}

// NewSQLiteLedger opens the ledger at path, creating parent directories,
// the schema and the algorithm registry as needed. Any failure here is fatal:
// no ledger is returned.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteLedger(path string, logger dupe.Logger, opts Options) (*SQLiteLedger, error) {
	if logger == nil {
		logger = dupe.NewNopLogger()
	}

	db, err := OpenConnection(path, opts)
	if err != nil {
		return nil, err
	}

	l := &SQLiteLedger{db: db, path: path, logger: logger}
	if err := l.EnsureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := l.EnsureAlgorithms(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// The pool is limited to one connection so that ":memory:" databases are
// shared by every statement and writes are serialised.
func OpenConnection(path string, opts Options) (*sql.DB, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, wrapErr("open", path, err)
	}
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, wrapErr("enable foreign keys", path, err)
	}

	if opts.BusyTimeout > 0 {
		pragma := fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeout.Milliseconds())
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, wrapErr("set busy timeout", path, err)
		}
	}

	return db, nil
}

// Path returns the database location the ledger was opened with.
func (l *SQLiteLedger) Path() string {
	return l.path
}

// Schema

func (l *SQLiteLedger) EnsureSchema() error {
	if err := migrations.MigrateUp(l.db); err != nil {
		return wrapErr("ensure schema", l.path, err)
	}
	if err := migrations.CheckDBMigrationStatus(l.db); err != nil {
		return wrapErr("ensure schema", l.path, err)
	}
	return nil
}

func (l *SQLiteLedger) EnsureAlgorithms() error {
	for _, name := range hashing.Names() {
		if err := l.insertAlgorithm(name); err != nil {
			return err
		}
	}
	return nil
}

// insertAlgorithm adds name to the registry. A unique violation means another
// writer got there first, which is success.
func (l *SQLiteLedger) insertAlgorithm(name string) error {
	_, err := l.db.Exec(`
		INSERT INTO Algorithm (AlgorithmName)
		SELECT @name
		WHERE NOT EXISTS (SELECT 1 FROM Algorithm WHERE AlgorithmName = @name)`,
		sql.Named("name", name))
	if err != nil && !isUniqueViolation(err) {
		return wrapErr("insert algorithm "+name, l.path, err)
	}
	return nil
}

// ensureAlgorithm validates name and makes sure it has a registry row.
func (l *SQLiteLedger) ensureAlgorithm(name string) error {
	if !hashing.IsSupported(name) {
		return fmt.Errorf("%w: %q", hashing.ErrUnsupportedAlgorithm, name)
	}

	var id int64
	err := l.db.QueryRow("SELECT AlgorithmId FROM Algorithm WHERE AlgorithmName = @name",
		sql.Named("name", name)).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return wrapErr("find algorithm "+name, l.path, err)
	}
	return l.insertAlgorithm(name)
}

// Observations

func (l *SQLiteLedger) LogFileHash(hash sql.NullString, algorithm, filePath string, fileSize int64, processedAt time.Time) error {
	if err := l.ensureAlgorithm(algorithm); err != nil {
		return err
	}

	_, err := l.db.Exec(`
		INSERT INTO FileHash (Hash, AlgorithmId, FilePath, FileSize, ProcessedAt)
		SELECT @hash, a.AlgorithmId, @path, @size, @processed
		FROM Algorithm a
		WHERE a.AlgorithmName = @algorithm
		  AND NOT EXISTS (SELECT 1 FROM FileHash WHERE FilePath = @path)`,
		sql.Named("hash", hash),
		sql.Named("path", filePath),
		sql.Named("size", fileSize),
		sql.Named("processed", processedAt.UnixMilli()),
		sql.Named("algorithm", algorithm),
	)
	return wrapErr("log file hash "+filePath, l.path, err)
}

func (l *SQLiteLedger) LogMovedFile(hash, algorithm, sourcePath string, destinationPath sql.NullString, timestamp time.Time) error {
	exists, err := l.HasObservation(sourcePath)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", dupe.ErrUnknownSource, sourcePath)
	}
	if err := l.ensureAlgorithm(algorithm); err != nil {
		return err
	}

	_, err = l.db.Exec(`
		INSERT INTO MovedFile (Hash, AlgorithmId, SourcePath, DestinationPath, Timestamp)
		SELECT @hash, AlgorithmId, @source, @destination, @ts
		FROM Algorithm
		WHERE AlgorithmName = @algorithm`,
		sql.Named("hash", hash),
		sql.Named("source", sourcePath),
		sql.Named("destination", destinationPath),
		sql.Named("ts", timestamp.UnixMilli()),
		sql.Named("algorithm", algorithm),
	)
	if err != nil {
		return wrapErr("log moved file "+sourcePath, l.path, err)
	}

	// The MovedFile row already hides the path from the live set, so a failed
	// delete leaves a stale row rather than an inconsistent ledger.
	if _, err := l.db.Exec("DELETE FROM FileHash WHERE FilePath = @path", sql.Named("path", sourcePath)); err != nil {
		l.logger.Warn("failed to delete superseded file hash",
			"path", sourcePath,
			"error", wrapErr("delete file hash", l.path, err))
	}
	return nil
}

func (l *SQLiteLedger) CorrectFailedFileHash(hash, algorithm, filePath string, fileSize int64, processedAt time.Time) (bool, error) {
	if hash == "" {
		return false, fmt.Errorf("%w: empty hash for %s", dupe.ErrInvalidOption, filePath)
	}
	if err := l.ensureAlgorithm(algorithm); err != nil {
		return false, err
	}

	tx, err := l.db.Begin()
	if err != nil {
		return false, wrapErr("begin correction", l.path, err)
	}
	defer tx.Rollback()

	var failed, succeeded int
	err = tx.QueryRow(`
		SELECT COUNT(*) - COUNT(Hash), COUNT(Hash)
		FROM FileHash
		WHERE FilePath = @path`,
		sql.Named("path", filePath)).Scan(&failed, &succeeded)
	if err != nil {
		return false, wrapErr("count observations "+filePath, l.path, err)
	}
	if failed == 0 || succeeded > 0 {
		return false, nil
	}

	if _, err := tx.Exec("DELETE FROM FileHash WHERE FilePath = @path AND Hash IS NULL",
		sql.Named("path", filePath)); err != nil {
		return false, wrapErr("delete failed observations "+filePath, l.path, err)
	}

	_, err = tx.Exec(`
		INSERT INTO FileHash (Hash, AlgorithmId, FilePath, FileSize, ProcessedAt)
		SELECT @hash, AlgorithmId, @path, @size, @processed
		FROM Algorithm
		WHERE AlgorithmName = @algorithm`,
		sql.Named("hash", hash),
		sql.Named("path", filePath),
		sql.Named("size", fileSize),
		sql.Named("processed", processedAt.UnixMilli()),
		sql.Named("algorithm", algorithm),
	)
	if err != nil {
		return false, wrapErr("insert corrected observation "+filePath, l.path, err)
	}

	if err := tx.Commit(); err != nil {
		return false, wrapErr("commit correction", l.path, err)
	}
	return true, nil
}

func (l *SQLiteLedger) GetFailedFilePaths() ([]string, error) {
	rows, err := l.db.Query(`
		SELECT FilePath
		FROM FileHash
		GROUP BY FilePath
		HAVING COUNT(Hash) = 0
		ORDER BY FilePath`)
	if err != nil {
		return nil, wrapErr("get failed file paths", l.path, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, wrapErr("scan failed file path", l.path, err)
		}
		paths = append(paths, p)
	}
	return paths, wrapErr("get failed file paths", l.path, rows.Err())
}

// FileExistsInDatabase reports whether filePath is live: it has a FileHash
// row and no MovedFile record supersedes it.
func (l *SQLiteLedger) FileExistsInDatabase(filePath string) (bool, error) {
	return l.exists("check file "+filePath, `
		SELECT EXISTS (
			SELECT 1 FROM FileHash fh
			WHERE fh.FilePath = @path
			  AND NOT EXISTS (SELECT 1 FROM MovedFile mf WHERE mf.SourcePath = fh.FilePath)
		)`, filePath)
}

// HasObservation reports whether filePath has any FileHash row, moved or not.
func (l *SQLiteLedger) HasObservation(filePath string) (bool, error) {
	return l.exists("check observation "+filePath,
		"SELECT EXISTS (SELECT 1 FROM FileHash WHERE FilePath = @path)", filePath)
}

func (l *SQLiteLedger) exists(op, query, filePath string) (bool, error) {
	var exists bool
	if err := l.db.QueryRow(query, sql.Named("path", filePath)).Scan(&exists); err != nil {
		return false, wrapErr(op, l.path, err)
	}
	return exists, nil
}

// Groups

const groupColumns = "Hash, Algorithm, FilePaths, FileCount, MaxFileSize, MinProcessedAt, MaxProcessedAt, RecordCount"

func (l *SQLiteLedger) GetFileHashes(limit int, filters filter.Compiled) ([]*dupe.DuplicateGroup, error) {
	query := "SELECT " + groupColumns + " FROM DeduplicatedFile WHERE 1 = 1" + filters.And() + " ORDER BY FilePaths, Hash"
	args := filters.Args()
	if limit != -1 {
		query += " LIMIT @limit"
		args = append(args, sql.Named("limit", limit))
	}
	groups, err := l.queryGroups("get file hashes", query, args)
	if err != nil {
		return nil, err
	}

	// The view joins paths with newlines; read them back as rows so a path
	// containing a newline stays whole. The pool has one connection, so this
	// runs after the group rows are closed.
	for _, g := range groups {
		if g.FilePaths, err = l.livePaths(g.Hash, g.Algorithm); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (l *SQLiteLedger) livePaths(hash, algorithm string) ([]string, error) {
	rows, err := l.db.Query(`
		SELECT DISTINCT fh.FilePath
		FROM FileHash fh
		JOIN Algorithm a ON a.AlgorithmId = fh.AlgorithmId
		WHERE fh.Hash = @hash
		  AND a.AlgorithmName = @algorithm
		  AND NOT EXISTS (SELECT 1 FROM MovedFile mf WHERE mf.SourcePath = fh.FilePath)
		ORDER BY fh.FilePath`,
		sql.Named("hash", hash), sql.Named("algorithm", algorithm))
	if err != nil {
		return nil, wrapErr("get group paths "+hash, l.path, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, wrapErr("scan group path", l.path, err)
		}
		paths = append(paths, p)
	}
	return paths, wrapErr("get group paths "+hash, l.path, rows.Err())
}

func (l *SQLiteLedger) FindDuplicateGroups(q dupe.DuplicateQuery) ([]*dupe.DuplicateGroup, error) {
	moved := ""
	count := "RecordCount"
	if !q.Reprocess {
		moved = " AND NOT EXISTS (SELECT 1 FROM MovedFile mf WHERE mf.SourcePath = fh.FilePath)"
		count = "SuccessCount"
	}

	order, err := orderColumn(q.OrderBy)
	if err != nil {
		return nil, err
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}

	query := `
		SELECT ` + groupColumns + `
		FROM (
			SELECT
				fh.Hash                                                  AS Hash,
				a.AlgorithmName                                          AS Algorithm,
				GROUP_CONCAT(fh.FilePath, char(10) ORDER BY fh.FilePath) AS FilePaths,
				COUNT(DISTINCT fh.FilePath)                              AS FileCount,
				MAX(fh.FileSize)                                         AS MaxFileSize,
				MIN(fh.ProcessedAt)                                      AS MinProcessedAt,
				MAX(fh.ProcessedAt)                                      AS MaxProcessedAt,
				COUNT(*)                                                 AS RecordCount,
				COUNT(DISTINCT CASE WHEN NOT EXISTS (
					SELECT 1 FROM MovedFile mf WHERE mf.SourcePath = fh.FilePath
				) THEN fh.FilePath END)                                  AS SuccessCount
			FROM FileHash fh
			JOIN Algorithm a ON a.AlgorithmId = fh.AlgorithmId
			WHERE fh.Hash IS NOT NULL
			  AND a.AlgorithmName = @algorithm` + moved + q.RowFilters.And() + `
			GROUP BY fh.Hash, a.AlgorithmName
		)
		WHERE ` + count + ` > 1` + q.GroupFilters.And() + `
		ORDER BY ` + order + ` ` + direction + `, Hash`

	args := filter.Merge(q.RowFilters, q.GroupFilters).Args()
	args = append(args, sql.Named("algorithm", q.Algorithm))
	return l.queryGroups("find duplicate groups", query, args)
}

func orderColumn(key dupe.OrderKey) (string, error) {
	switch key {
	case dupe.OrderByFilePaths, "":
		return "FilePaths", nil
	case dupe.OrderByEarliestProcessed:
		return "MinProcessedAt", nil
	case dupe.OrderByLatestProcessed:
		return "MaxProcessedAt", nil
	}
	return "", fmt.Errorf("%w: unknown order key %q", dupe.ErrInvalidOption, key)
}

func (l *SQLiteLedger) queryGroups(op, query string, args []any) ([]*dupe.DuplicateGroup, error) {
	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, wrapErr(op, l.path, err)
	}
	defer rows.Close()

	var groups []*dupe.DuplicateGroup
	for rows.Next() {
		var (
			g                     dupe.DuplicateGroup
			paths                 string
			maxSize, minTs, maxTs sql.NullInt64
		)
		if err := rows.Scan(&g.Hash, &g.Algorithm, &paths, &g.FileCount, &maxSize, &minTs, &maxTs, &g.RecordCount); err != nil {
			return nil, wrapErr(op, l.path, err)
		}
		g.FilePaths = strings.Split(paths, "\n")
		g.MaxFileSize = maxSize.Int64
		g.MinProcessedAt = time.UnixMilli(minTs.Int64)
		g.MaxProcessedAt = time.UnixMilli(maxTs.Int64)
		groups = append(groups, &g)
	}
	return groups, wrapErr(op, l.path, rows.Err())
}

func (l *SQLiteLedger) FindGroupMembers(q dupe.MemberQuery) ([]*dupe.GroupMember, error) {
	moved := ""
	if !q.Reprocess {
		moved = " AND NOT EXISTS (SELECT 1 FROM MovedFile mf WHERE mf.SourcePath = fh.FilePath)"
	}

	query := `
		SELECT fh.FileHashId, fh.FilePath, fh.FileSize, fh.ProcessedAt
		FROM FileHash fh
		JOIN Algorithm a ON a.AlgorithmId = fh.AlgorithmId
		WHERE fh.Hash = @hash
		  AND a.AlgorithmName = @algorithm` + moved + q.Filters.And() + `
		ORDER BY fh.FileHashId`

	args := q.Filters.Args()
	args = append(args, sql.Named("hash", q.Hash), sql.Named("algorithm", q.Algorithm))

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, wrapErr("find group members "+q.Hash, l.path, err)
	}
	defer rows.Close()

	var members []*dupe.GroupMember
	for rows.Next() {
		var (
			m        dupe.GroupMember
			size, ts sql.NullInt64
		)
		if err := rows.Scan(&m.ID, &m.FilePath, &size, &ts); err != nil {
			return nil, wrapErr("scan group member", l.path, err)
		}
		m.FileSize = size.Int64
		m.ProcessedAt = time.UnixMilli(ts.Int64)
		members = append(members, &m)
	}
	return members, wrapErr("find group members "+q.Hash, l.path, rows.Err())
}

// History

func (l *SQLiteLedger) GetMovedFiles(limit int) ([]*dupe.MovedRecord, error) {
	query := `
		SELECT mf.MovedFileId, mf.Hash, a.AlgorithmName, mf.SourcePath, mf.DestinationPath, mf.Timestamp
		FROM MovedFile mf
		JOIN Algorithm a ON a.AlgorithmId = mf.AlgorithmId
		ORDER BY mf.MovedFileId DESC`
	var args []any
	if limit != -1 {
		query += " LIMIT @limit"
		args = append(args, sql.Named("limit", limit))
	}

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, wrapErr("get moved files", l.path, err)
	}
	defer rows.Close()

	var records []*dupe.MovedRecord
	for rows.Next() {
		var (
			r    dupe.MovedRecord
			hash sql.NullString
			ts   int64
		)
		if err := rows.Scan(&r.ID, &hash, &r.Algorithm, &r.SourcePath, &r.DestinationPath, &ts); err != nil {
			return nil, wrapErr("scan moved file", l.path, err)
		}
		r.Hash = hash.String
		r.Timestamp = time.UnixMilli(ts)
		records = append(records, &r)
	}
	return records, wrapErr("get moved files", l.path, rows.Err())
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
// destPath must not exist.
func (l *SQLiteLedger) BackupTo(destPath string) error {
	_, err := l.db.Exec("VACUUM INTO ?", destPath)
	return wrapErr("backup to "+destPath, l.path, err)
}

// Close closes the database connection.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
