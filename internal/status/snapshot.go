// Package status publishes the latest aggregate free/occupied counts for
// external readers.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/banshee-data/parking.report/internal/fsutil"
)

// Space status values used in snapshots.
const (
	Free     = "free"
	Occupied = "occupied"
)

// SpaceStatus is the per-space detail carried in a snapshot.
type SpaceStatus struct {
	ID             int        `json:"id"`
	Status         string     `json:"status"`
	OccupiedSince  *time.Time `json:"occupied_since,omitempty"`
	ElapsedSeconds float64    `json:"elapsed_seconds,omitempty"`
	Elapsed        string     `json:"elapsed,omitempty"` // HH:MM:SS
}

// Snapshot is the published state after one cycle. Free+Occupied == Total.
type Snapshot struct {
	Free      int           `json:"free"`
	Occupied  int           `json:"occupied"`
	Total     int           `json:"total"`
	UpdatedAt time.Time     `json:"updated_at"`
	Spaces    []SpaceStatus `json:"spaces,omitempty"`
}

// Validate checks the snapshot's count invariant.
func (s Snapshot) Validate() error {
	if s.Free < 0 || s.Occupied < 0 {
		return fmt.Errorf("negative counts free=%d occupied=%d", s.Free, s.Occupied)
	}
	if s.Free+s.Occupied != s.Total {
		return fmt.Errorf("free (%d) + occupied (%d) != total (%d)", s.Free, s.Occupied, s.Total)
	}
	return nil
}

// AllFree returns the initial snapshot for total spaces.
func AllFree(total int, now time.Time) Snapshot {
	snap := Snapshot{Free: total, Total: total, UpdatedAt: now, Spaces: make([]SpaceStatus, total)}
	for i := range snap.Spaces {
		snap.Spaces[i] = SpaceStatus{ID: i + 1, Status: Free}
	}
	return snap
}

// ErrNoSnapshot means nothing has been published yet.
var ErrNoSnapshot = errors.New("no status snapshot published yet")

// SerializationError reports a snapshot artifact that exists but cannot be
// decoded. Readers treat it as transient.
type SerializationError struct {
	Path string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("status snapshot %s: %v", e.Path, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Read loads the snapshot at path. A missing file yields ErrNoSnapshot and an
// undecodable one a *SerializationError.
func Read(fsys fsutil.FileSystem, path string) (Snapshot, error) {
	data, err := fsys.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read status snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, &SerializationError{Path: path, Err: err}
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, &SerializationError{Path: path, Err: err}
	}
	return snap, nil
}
