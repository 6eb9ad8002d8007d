package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Store persists alignment records.
// Implementations must be safe for concurrent use.
//
// Error handling conventions:
//   - Return ErrNotFound (matched with errors.Is) if a record doesn't exist for Load/Delete
//   - Wrap underlying errors with context using fmt.Errorf("context: %w", err)
type Store interface {
	// SaveResult validates and saves rec, overwriting any record with the same ID.
	SaveResult(ctx context.Context, rec *Record) error

	// LoadResult retrieves the record with the given ID.
	LoadResult(ctx context.Context, id string) (*Record, error)

	// ListResults returns metadata for all stored records, oldest first.
	ListResults(ctx context.Context) ([]RecordInfo, error)

	// DeleteResult removes the record and any artifacts stored alongside it.
	DeleteResult(ctx context.Context, id string) error

	io.Closer
}

// ErrNotFound is returned when a requested record does not exist.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &NotFoundError{}

// NotFoundError represents a missing record error.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return "result not found: " + e.ID
	}
	return "result not found"
}

func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)
	return ok
}

// Backend names accepted by Open
const (
	BackendFS       = "fs"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Backend     string
	DataDir     string
	RedisURL    string
	DatabaseURL string
}

// Open creates the store described by opts. An empty backend means fs.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendFS:
		return NewFSStore(opts.DataDir)
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisURL)
	case BackendPostgres:
		pg, err := NewPostgresStore(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", opts.Backend)
	}
}

// ErrInvalidID is returned for IDs that cannot name a record.
var ErrInvalidID = errors.New("invalid result id")

// validateID rejects IDs that would resolve outside the record's own
// directory in the filesystem store.
func validateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: cannot be empty", ErrInvalidID)
	case id == "." || id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidID, id)
	}
	return nil
}
