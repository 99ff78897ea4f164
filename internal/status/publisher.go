package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/parking.report/internal/fsutil"
)

// Publisher replaces the latest snapshot.
type Publisher interface {
	Publish(Snapshot) error
}

// FilePublisher writes snapshots as JSON, replacing the file atomically so a
// reader sees either the previous or the new snapshot.
type FilePublisher struct {
	fs   fsutil.FileSystem
	path string
}

// NewFilePublisher returns a publisher writing to path on fsys.
func NewFilePublisher(fsys fsutil.FileSystem, path string) *FilePublisher {
	return &FilePublisher{fs: fsys, path: path}
}

// Path returns the snapshot file path.
func (p *FilePublisher) Path() string { return p.path }

// Publish serialises snap and swaps it into place.
func (p *FilePublisher) Publish(snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal status snapshot: %w", err)
	}
	if err := fsutil.WriteFileAtomic(p.fs, p.path, data, 0644); err != nil {
		return fmt.Errorf("publish status snapshot %s: %w", p.path, err)
	}
	return nil
}

// Seed writes the all-free snapshot for total spaces, creating the parent
// directory if needed.
func Seed(fsys fsutil.FileSystem, path string, total int, now time.Time) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create status directory: %w", err)
		}
	}
	return NewFilePublisher(fsys, path).Publish(AllFree(total, now))
}

// Memory keeps the latest snapshot in memory for the HTTP API.
type Memory struct {
	mu     sync.RWMutex
	latest *Snapshot
}

// NewMemory returns an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish stores a copy of snap.
func (m *Memory) Publish(snap Snapshot) error {
	snap.Spaces = append([]SpaceStatus(nil), snap.Spaces...)
	m.mu.Lock()
	m.latest = &snap
	m.mu.Unlock()
	return nil
}

// Latest returns the most recent snapshot, or ErrNoSnapshot.
func (m *Memory) Latest() (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	snap := *m.latest
	snap.Spaces = append([]SpaceStatus(nil), snap.Spaces...)
	return snap, nil
}

// Multi publishes to every publisher in order. All are attempted; failures
// are joined.
type Multi []Publisher

// Publish fans snap out to each publisher.
func (m Multi) Publish(snap Snapshot) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
