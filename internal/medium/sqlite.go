package medium

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/snapdoc/snapdoc/internal/errs"
	"github.com/snapdoc/snapdoc/internal/value"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added author index
const currentSchemaVersion = 1

// domainVersion separates version-token hashes from plain blob hashes.
const domainVersion = "snapdoc/version/v1"

// snapshotPath is the logical path reported by CompareVersions: the
// medium holds exactly one file's worth of state per version.
const snapshotPath = "snapshot"

// SQLite is the version-controlled snapshot medium. Every write appends
// an immutable row to the version log; the current snapshot is the row
// with the highest sequence number. WAL mode allows history reads to
// proceed concurrently with an in-flight write.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite creates or opens the version log at path and applies
// pragmas and migrations. Idempotent.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, &errs.StorageError{Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errs.StorageError{Op: "open", Err: err}
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db, path: path}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return &errs.StorageError{Op: "pragma", Err: fmt.Errorf("%s: %w", pragma, err)}
		}
	}
	return nil
}

// Init applies the schema and migrations. Safe to call multiple times.
func (m *SQLite) Init() error {
	if _, err := m.db.Exec(schemaSQL); err != nil {
		return &errs.StorageError{Op: "schema", Err: err}
	}

	var version int
	if err := m.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return &errs.StorageError{Op: "schema", Err: err}
	}
	if version < currentSchemaVersion {
		if _, err := m.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return &errs.StorageError{Op: "schema", Err: err}
		}
	}
	return nil
}

func (m *SQLite) Close() error {
	if m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *SQLite) ReadCurrent(ctx context.Context) ([]byte, string, error) {
	var token string
	var blob []byte
	err := m.db.QueryRowContext(ctx, `
		SELECT token, blob FROM versions ORDER BY seq DESC LIMIT 1
	`).Scan(&token, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", &errs.StorageError{Op: "read current", Err: err}
	}
	return blob, token, nil
}

func (m *SQLite) WriteNew(ctx context.Context, blob []byte, message string, author Author, expectedToken string) (string, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", &errs.StorageError{Op: "begin", Err: err}
	}
	defer tx.Rollback() // no-op if committed

	var headToken string
	err = tx.QueryRowContext(ctx, `
		SELECT token FROM versions ORDER BY seq DESC LIMIT 1
	`).Scan(&headToken)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", &errs.StorageError{Op: "read head", Err: err}
	}

	if headToken != expectedToken {
		return "", fmt.Errorf("head is %.12s, expected %.12s: %w",
			headToken, expectedToken, errs.ErrVersionConflict)
	}

	now := time.Now().UTC()
	token := versionToken(headToken, now, message, blob)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO versions (token, parent_token, message, author_name, author_email, created_at, blob)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, token, headToken, message, author.Name, author.Email, now.Format(time.RFC3339Nano), blob)
	if err != nil {
		return "", &errs.StorageError{Op: "insert version", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return "", &errs.StorageError{Op: "commit", Err: err}
	}
	return token, nil
}

// versionToken derives the content-addressed token for a new version.
// The parent token and timestamp are part of the hash, so reverting to
// earlier content still produces a fresh token.
func versionToken(parent string, ts time.Time, message string, blob []byte) string {
	payload := make([]byte, 0, len(parent)+len(message)+len(blob)+40)
	payload = append(payload, parent...)
	payload = append(payload, 0x00)
	payload = append(payload, ts.Format(time.RFC3339Nano)...)
	payload = append(payload, 0x00)
	payload = append(payload, message...)
	payload = append(payload, 0x00)
	payload = append(payload, blob...)
	return value.HashWithDomain(domainVersion, payload)
}

func (m *SQLite) ListVersions(ctx context.Context, limit int) ([]VersionRecord, error) {
	query := `
		SELECT token, parent_token, message, author_name, author_email, created_at
		FROM versions ORDER BY seq DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &errs.StorageError{Op: "list versions", Err: err}
	}
	defer rows.Close()

	var out []VersionRecord
	for rows.Next() {
		rec, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &errs.StorageError{Op: "list versions", Err: err}
	}
	return out, nil
}

func scanVersion(rows *sql.Rows) (VersionRecord, error) {
	var rec VersionRecord
	var parent, createdAt string
	if err := rows.Scan(&rec.Token, &parent, &rec.Message, &rec.Author.Name, &rec.Author.Email, &createdAt); err != nil {
		return rec, &errs.StorageError{Op: "scan version", Err: err}
	}
	if parent != "" {
		rec.ParentTokens = []string{parent}
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return rec, &errs.StorageError{Op: "scan version", Err: fmt.Errorf("timestamp %q: %w", createdAt, err)}
	}
	rec.Timestamp = ts
	return rec, nil
}

func (m *SQLite) ReadAtVersion(ctx context.Context, token string) ([]byte, error) {
	var blob []byte
	err := m.db.QueryRowContext(ctx, `
		SELECT blob FROM versions WHERE token = ?
	`, token).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFoundf("version %.12s", token)
	}
	if err != nil {
		return nil, &errs.StorageError{Op: "read at version", Err: err}
	}
	return blob, nil
}

func (m *SQLite) CompareVersions(ctx context.Context, tokenA, tokenB string) (Comparison, error) {
	seqA, blobA, err := m.versionSeq(ctx, tokenA)
	if err != nil {
		return Comparison{}, err
	}
	seqB, blobB, err := m.versionSeq(ctx, tokenB)
	if err != nil {
		return Comparison{}, err
	}

	cmp := Comparison{}
	switch {
	case seqB > seqA:
		cmp.AheadBy = int(seqB - seqA)
	case seqA > seqB:
		cmp.BehindBy = int(seqA - seqB)
	}
	cmp.TotalCommits = cmp.AheadBy + cmp.BehindBy

	status := "unchanged"
	if string(blobA) != string(blobB) {
		status = "modified"
	}
	cmp.Files = []FileDiff{{Path: snapshotPath, Status: status}}
	return cmp, nil
}

func (m *SQLite) versionSeq(ctx context.Context, token string) (int64, []byte, error) {
	var seq int64
	var blob []byte
	err := m.db.QueryRowContext(ctx, `
		SELECT seq, blob FROM versions WHERE token = ?
	`, token).Scan(&seq, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, errs.NotFoundf("version %.12s", token)
	}
	if err != nil {
		return 0, nil, &errs.StorageError{Op: "compare versions", Err: err}
	}
	return seq, blob, nil
}
