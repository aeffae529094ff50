// Package medium implements the snapshot mediums: the storage layer that
// holds whole-database snapshot blobs addressed by opaque version
// tokens. The file medium keeps a single data file with atomic replace;
// the SQLite medium additionally keeps an ordered, immutable version log
// with metadata and compare support.
package medium

import (
	"context"
	"time"
)

// Author identifies who produced a version.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// VersionRecord is the immutable metadata attached to one snapshot
// transition in a versioned medium's log.
type VersionRecord struct {
	Token        string    `json:"token"`
	Message      string    `json:"message"`
	Author       Author    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	ParentTokens []string  `json:"parentTokens,omitempty"`
}

// FileDiff describes one changed path in a version comparison.
type FileDiff struct {
	Path   string `json:"path"`
	Status string `json:"status"` // "modified" | "unchanged"
}

// Comparison is the result of comparing two versions.
type Comparison struct {
	AheadBy      int        `json:"aheadBy"`  // commits B is ahead of A
	BehindBy     int        `json:"behindBy"` // commits B is behind A
	TotalCommits int        `json:"totalCommits"`
	Files        []FileDiff `json:"files"`
}

// Medium stores and retrieves snapshot blobs by version token.
//
// WriteNew must fail with errs.ErrVersionConflict when expectedToken does
// not match the medium's actual current token; this optimistic check is
// the sole cross-process concurrency control.
type Medium interface {
	// Init prepares the medium (creates files, applies schema). Idempotent.
	Init() error

	// ReadCurrent returns the current snapshot blob and its version
	// token. An empty medium returns a nil blob and an empty token.
	ReadCurrent(ctx context.Context) (blob []byte, token string, err error)

	// WriteNew stores blob as the new current snapshot, checking
	// expectedToken against the actual current token first. Returns the
	// new version token.
	WriteNew(ctx context.Context, blob []byte, message string, author Author, expectedToken string) (string, error)

	// Close releases underlying resources.
	Close() error
}

// Versioned is implemented by mediums that keep the full ordered version
// log (the SQLite medium). The file medium is not versioned: it only
// ever holds the latest snapshot.
type Versioned interface {
	Medium

	// ListVersions returns version records newest first. limit <= 0
	// returns the whole log.
	ListVersions(ctx context.Context, limit int) ([]VersionRecord, error)

	// ReadAtVersion returns the exact blob stored at the given token.
	ReadAtVersion(ctx context.Context, token string) ([]byte, error)

	// CompareVersions compares two versions in the linear log.
	CompareVersions(ctx context.Context, tokenA, tokenB string) (Comparison, error)
}

// Watchable is implemented by mediums that can report external changes
// to their backing storage (another process rewriting the data file).
type Watchable interface {
	// Watch invokes onChange for every external modification until stop
	// is called.
	Watch(onChange func()) (stop func(), err error)
}
