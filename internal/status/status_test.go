package status

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/parking.report/internal/fsutil"
)

var t0 = time.Date(2024, 10, 5, 14, 0, 0, 0, time.UTC)

func TestFilePublisherRoundTrip(t *testing.T) {
	m := fsutil.NewMemoryFileSystem()
	pub := NewFilePublisher(m, "/run/parking/status.json")

	since := t0.Add(-90 * time.Second)
	snap := Snapshot{
		Free: 2, Occupied: 1, Total: 3, UpdatedAt: t0,
		Spaces: []SpaceStatus{
			{ID: 1, Status: Free},
			{ID: 2, Status: Occupied, OccupiedSince: &since, ElapsedSeconds: 90, Elapsed: "00:01:30"},
			{ID: 3, Status: Free},
		},
	}
	require.NoError(t, pub.Publish(snap))

	got, err := Read(m, "/run/parking/status.json")
	require.NoError(t, err)
	if diff := cmp.Diff(snap, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"/run/parking/status.json"}, m.Files())
}

func TestReadMissingIsNoSnapshot(t *testing.T) {
	_, err := Read(fsutil.NewMemoryFileSystem(), "/status.json")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestReadMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"truncated", `{"free":1,"occ`},
		{"counts disagree", `{"free":1,"occupied":1,"total":3}`},
		{"negative", `{"free":-1,"occupied":4,"total":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fsutil.NewMemoryFileSystem()
			require.NoError(t, m.WriteFile("/status.json", []byte(tt.body), 0644))

			_, err := Read(m, "/status.json")
			var se *SerializationError
			require.True(t, errors.As(err, &se), "expected SerializationError, got %v", err)
			assert.Equal(t, "/status.json", se.Path)
		})
	}
}

func TestPublishFailureKeepsPrevious(t *testing.T) {
	m := fsutil.NewMemoryFileSystem()
	pub := NewFilePublisher(m, "/status.json")
	require.NoError(t, pub.Publish(AllFree(3, t0)))

	m.FailWrites = errors.New("read-only filesystem")
	err := pub.Publish(Snapshot{Free: 0, Occupied: 3, Total: 3, UpdatedAt: t0})
	require.Error(t, err)

	m.FailWrites = nil
	got, err := Read(m, "/status.json")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Free)
}

func TestConcurrentReadersNeverSeeHalfWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	var fsys fsutil.OSFileSystem
	pub := NewFilePublisher(fsys, path)
	require.NoError(t, pub.Publish(AllFree(50, t0)))

	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				if _, err := Read(fsys, path); err != nil {
					t.Errorf("reader observed %v", err)
					return
				}
			}
		}()
	}

	for i := 0; i <= 50; i++ {
		snap := AllFree(50, t0.Add(time.Duration(i)*time.Second))
		for j := 0; j < i; j++ {
			snap.Spaces[j].Status = Occupied
		}
		snap.Free, snap.Occupied = 50-i, i
		require.NoError(t, pub.Publish(snap))
	}
	close(done)
	wg.Wait()
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run", "status.json")

	require.NoError(t, Seed(fsutil.OSFileSystem{}, path, 4, t0))

	got, err := Read(fsutil.OSFileSystem{}, path)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Free)
	assert.Equal(t, 0, got.Occupied)
	assert.Equal(t, 4, got.Total)
	require.Len(t, got.Spaces, 4)
	for i, s := range got.Spaces {
		assert.Equal(t, i+1, s.ID)
		assert.Equal(t, Free, s.Status)
		assert.Nil(t, s.OccupiedSince)
	}

	_, err = os.Stat(filepath.Join(dir, "run"))
	assert.NoError(t, err)
}

func TestMemory(t *testing.T) {
	mem := NewMemory()
	_, err := mem.Latest()
	assert.ErrorIs(t, err, ErrNoSnapshot)

	snap := AllFree(2, t0)
	require.NoError(t, mem.Publish(snap))

	// Mutating the caller's slice must not leak into the stored snapshot.
	snap.Spaces[0].Status = Occupied
	got, err := mem.Latest()
	require.NoError(t, err)
	assert.Equal(t, Free, got.Spaces[0].Status)
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(Snapshot) error { return f.err }

func TestMulti(t *testing.T) {
	boom := errors.New("disk full")
	mem := NewMemory()
	multi := Multi{failingPublisher{boom}, mem}

	err := multi.Publish(AllFree(1, t0))
	assert.ErrorIs(t, err, boom)

	// Later publishers still run after an earlier one fails.
	got, err := mem.Latest()
	require.NoError(t, err)
	assert.Equal(t, 1, got.Total)

	assert.NoError(t, Multi{mem}.Publish(AllFree(1, t0)))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, AllFree(3, t0).Validate())
	assert.Error(t, Snapshot{Free: 2, Occupied: 2, Total: 3}.Validate())
}
