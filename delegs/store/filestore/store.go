// Package filestore persists scan snapshots as timestamped JSON files in a
// single directory. Files are append-only: a snapshot is never overwritten
// or deleted, so the directory doubles as an audit and recovery trail.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/angerman/encoins-relay/delegs"
)

// timestampLayout orders lexicographically the same as chronologically.
const timestampLayout = "2006-01-02T15-04-05.000000000Z"

const fileExt = ".json"

// Sentinel errors for store operations
var (
	ErrDirUnavailable = errors.New("snapshot directory unavailable")
	ErrWriteFailed    = errors.New("snapshot write failed")
	ErrListFailed     = errors.New("snapshot listing failed")
)

// Store implements delegs.ProgressStore on a local directory
type Store struct {
	dir string
}

// New creates the snapshot directory if needed and returns a Store
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirUnavailable, err)
	}
	return &Store{dir: dir}, nil
}

// Save writes record under a fresh timestamped filename. O_EXCL guards the
// append-only contract: an existing file is never overwritten.
func (s *Store) Save(_ context.Context, prefix string, at time.Time, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	path := filepath.Join(s.dir, filename(prefix, at))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// LoadMostRecent parses the newest snapshot under the prefix into out.
// An empty directory or no matching file means no prior state, not an
// error. A parse failure on the selected file is delegs.ErrSnapshotCorrupt:
// silently falling back to an older file could mask data corruption.
func (s *Store) LoadMostRecent(_ context.Context, prefix string, out any) (time.Time, bool, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %w", ErrListFailed, err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.Type().IsRegular() && strings.HasPrefix(name, prefix+"_") && strings.HasSuffix(name, fileExt) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return time.Time{}, false, nil
	}

	// Lexicographic order equals chronological order for these names.
	sort.Strings(names)
	newest := names[len(names)-1]

	at, err := time.Parse(timestampLayout, strings.TrimSuffix(strings.TrimPrefix(newest, prefix+"_"), fileExt))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %s: %v", delegs.ErrSnapshotCorrupt, newest, err)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, newest))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %w", ErrListFailed, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return time.Time{}, false, fmt.Errorf("%w: %s: %v", delegs.ErrSnapshotCorrupt, newest, err)
	}
	return at, true, nil
}

func filename(prefix string, at time.Time) string {
	return prefix + "_" + at.UTC().Format(timestampLayout) + fileExt
}
