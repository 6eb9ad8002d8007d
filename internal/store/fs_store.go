package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// FSStore implements the Store interface using filesystem-based persistence.
// Records are stored in a directory structure: <baseDir>/jobs/<id>/result.json
// with the optional scan trace next to it.
//
// Thread-safety: writes go through a temp file and an atomic rename, so no
// locks are needed.
type FSStore struct {
	baseDir string // Root directory for all result data (e.g., "./data")
}

// NewFSStore creates a new filesystem-based store.
// The baseDir will be created if it doesn't exist.
func NewFSStore(baseDir string) (*FSStore, error) {
	if baseDir == "" {
		baseDir = "./data"
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		baseDir: baseDir,
	}, nil
}

// BaseDir returns the root directory of the store.
func (fs *FSStore) BaseDir() string {
	return fs.baseDir
}

// JobDir returns the directory path for a given record ID.
func (fs *FSStore) JobDir(id string) string {
	return filepath.Join(fs.baseDir, "jobs", id)
}

func (fs *FSStore) resultPath(id string) string {
	return filepath.Join(fs.JobDir(id), "result.json")
}

// SaveResult atomically saves a record using the temp file + rename pattern.
func (fs *FSStore) SaveResult(_ context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	jobDir := fs.JobDir(rec.ID)
	if err := os.MkdirAll(jobDir, 0755); err != nil {
		return fmt.Errorf("failed to create job directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	// Unique temp name so concurrent saves of one ID never share a file
	tmp, err := os.CreateTemp(jobDir, "result-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp result file: %w", err)
	}
	tempPath := tmp.Name()
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp result file: %w", errors.Join(werr, cerr))
	}

	finalPath := fs.resultPath(rec.ID)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename result file: %w", err)
	}

	slog.Debug("Result saved", "id", rec.ID, "path", finalPath)
	return nil
}

// LoadResult retrieves the record for the given ID.
func (fs *FSStore) LoadResult(_ context.Context, id string) (*Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	path := fs.resultPath(id)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{ID: id}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read result file: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to deserialize result: %w", err)
	}

	slog.Debug("Result loaded", "id", id, "path", path)
	return &rec, nil
}

// ListResults returns metadata for all stored records, oldest first.
func (fs *FSStore) ListResults(ctx context.Context) ([]RecordInfo, error) {
	jobsDir := filepath.Join(fs.baseDir, "jobs")

	entries, err := os.ReadDir(jobsDir)
	if os.IsNotExist(err) {
		return []RecordInfo{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read jobs directory: %w", err)
	}

	infos := []RecordInfo{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		rec, err := fs.LoadResult(ctx, entry.Name())
		if err != nil {
			// Directories without result.json, or corrupted ones
			slog.Warn("Failed to load result for listing", "id", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, rec.ToInfo())
	}

	sort.SliceStable(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})

	slog.Debug("Listed results", "count", len(infos))
	return infos, nil
}

// DeleteResult removes the record and all associated artifacts.
func (fs *FSStore) DeleteResult(_ context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	jobDir := fs.JobDir(id)
	if _, err := os.Stat(jobDir); os.IsNotExist(err) {
		return &NotFoundError{ID: id}
	} else if err != nil {
		return fmt.Errorf("failed to stat job directory: %w", err)
	}

	if err := os.RemoveAll(jobDir); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}
	if err := RemoveTrace(fs.baseDir, id); err != nil {
		return err
	}

	slog.Debug("Result deleted", "id", id, "path", jobDir)
	return nil
}

// Close is a no-op for the filesystem store.
func (fs *FSStore) Close() error {
	return nil
}
