// Package storage defines the persistence contracts for tracked pages and
// their check history. By keeping the interface here and the Postgres and
// in-memory implementations in subpackages, the rest of the application never
// depends on a concrete database.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned by CreateEntry when an entry with the same
	// canonical URL already exists. The existing entry is returned alongside
	// it so callers can treat the condition as "already tracked".
	ErrDuplicate = errors.New("duplicate")
)

// URLEntry is a tracked website, identified by its canonical URL.
// Entries are created once and never mutated or deleted.
type URLEntry struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Check is one point-in-time inspection result for an entry. StatusCode is a
// pointer because the column is nullable, although in practice a row is only
// written after a response was obtained.
type Check struct {
	ID          int64     `json:"id"`
	URLID       int64     `json:"url_id"`
	CreatedAt   time.Time `json:"created_at"`
	StatusCode  *int      `json:"status_code"`
	Title       string    `json:"title"`
	H1          string    `json:"h1"`
	Description string    `json:"description"`
}

// CheckInput carries the fields of a completed page inspection into the store.
type CheckInput struct {
	StatusCode  int
	Title       string
	H1          string
	Description string
}

// MergedEntry is the read-time projection joining an entry with its most
// recent check. Entries without checks carry nil last-check fields.
type MergedEntry struct {
	URLEntry
	LastCheckStatus *int       `json:"last_check_status_code"`
	LastCheckAt     *time.Time `json:"last_check_at"`
}

// Store is the persistence interface for entries and checks.
type Store interface {
	// FindByName looks up an entry by its canonical URL.
	FindByName(ctx context.Context, name string) (URLEntry, error)
	// FindByID looks up an entry by its identifier.
	FindByID(ctx context.Context, id int64) (URLEntry, error)
	// CreateEntry inserts a new entry for the given canonical URL. When an
	// entry with the same URL already exists, the existing entry is returned
	// together with ErrDuplicate; concurrent submissions of the same URL
	// resolve to a single row.
	CreateEntry(ctx context.Context, name string) (URLEntry, error)
	// ListEntries returns all entries ordered by identifier.
	ListEntries(ctx context.Context) ([]URLEntry, error)
	// ListChecks returns the checks for an entry in insertion order.
	ListChecks(ctx context.Context, urlID int64) ([]Check, error)
	// CreateCheck appends a check row for an entry. Returns ErrNotFound when
	// the entry does not exist.
	CreateCheck(ctx context.Context, urlID int64, input CheckInput) (Check, error)
	// MergedListing returns one row per entry joined with its latest check,
	// ordered by entry identifier descending.
	MergedListing(ctx context.Context) ([]MergedEntry, error)
}
