package occupancy

import (
	"fmt"
	"time"

	"github.com/banshee-data/parking.report/internal/spaces"
	"github.com/banshee-data/parking.report/internal/status"
	"github.com/banshee-data/parking.report/internal/units"
)

// Status is the occupancy of one space.
type Status int

const (
	Free Status = iota
	Occupied
)

func (s Status) String() string {
	switch s {
	case Free:
		return status.Free
	case Occupied:
		return status.Occupied
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Interval is a closed occupancy.
type Interval struct {
	Arrival   time.Time
	Departure time.Time
}

// SpaceState is the state machine for one space. The zero value is Free.
// occupiedSince is meaningful only while Occupied.
type SpaceState struct {
	status        Status
	occupiedSince time.Time
}

// Status returns the current status.
func (s *SpaceState) Status() Status { return s.status }

// OccupiedSince returns the start of the current occupancy, or false when Free.
func (s *SpaceState) OccupiedSince() (time.Time, bool) {
	if s.status != Occupied {
		return time.Time{}, false
	}
	return s.occupiedSince, true
}

// Transition applies one cycle's presence signal. It returns the closed
// interval on Occupied→Free and reports whether the status changed.
func (s *SpaceState) Transition(present bool, now time.Time) (closed *Interval, changed bool) {
	switch {
	case present && s.status == Free:
		s.status = Occupied
		s.occupiedSince = now
		return nil, true
	case !present && s.status == Occupied:
		iv := &Interval{Arrival: s.occupiedSince, Departure: now}
		s.status = Free
		s.occupiedSince = time.Time{}
		return iv, true
	default:
		return nil, false
	}
}

// Elapsed returns how long the space has been occupied at now, or 0 when Free.
func (s *SpaceState) Elapsed(now time.Time) time.Duration {
	if s.status != Occupied {
		return 0
	}
	if d := now.Sub(s.occupiedSince); d > 0 {
		return d
	}
	return 0
}

// Checkpoint records an in-progress occupancy so it can survive a restart.
type Checkpoint struct {
	SpaceID       int       `json:"space_id"`
	OccupiedSince time.Time `json:"occupied_since"`
}

// ClosedOccupancy is an interval closed during a step, tagged with its space.
type ClosedOccupancy struct {
	SpaceID int
	Interval
}

// StepResult lists what changed in one step.
type StepResult struct {
	Opened []int // space IDs that became Occupied
	Closed []ClosedOccupancy
}

// Changed reports whether any space changed status.
func (r StepResult) Changed() bool {
	return len(r.Opened) > 0 || len(r.Closed) > 0
}

// Store owns the state of every space, indexed by the space's position in
// the definitions. It is used by a single goroutine.
type Store struct {
	spaces []spaces.Space
	states []SpaceState
}

// NewStore returns a store with every space Free.
func NewStore(all []spaces.Space) *Store {
	return &Store{
		spaces: append([]spaces.Space(nil), all...),
		states: make([]SpaceState, len(all)),
	}
}

// Len returns the number of spaces.
func (st *Store) Len() int { return len(st.states) }

// State returns the state of the space at index i.
func (st *Store) State(i int) *SpaceState { return &st.states[i] }

// Step applies present[i] to space i. present must have one entry per space.
func (st *Store) Step(present []bool, now time.Time) StepResult {
	if len(present) != len(st.states) {
		panic(fmt.Sprintf("occupancy: %d presence values for %d spaces", len(present), len(st.states)))
	}
	var res StepResult
	for i := range st.states {
		closed, changed := st.states[i].Transition(present[i], now)
		if !changed {
			continue
		}
		id := st.spaces[i].ID
		if closed != nil {
			res.Closed = append(res.Closed, ClosedOccupancy{SpaceID: id, Interval: *closed})
		} else {
			res.Opened = append(res.Opened, id)
		}
	}
	return res
}

// Counts returns the number of free and occupied spaces.
func (st *Store) Counts() (free, occupied int) {
	for i := range st.states {
		if st.states[i].status == Occupied {
			occupied++
		}
	}
	return len(st.states) - occupied, occupied
}

// Snapshot builds the published status at now.
func (st *Store) Snapshot(now time.Time) status.Snapshot {
	free, occupied := st.Counts()
	snap := status.Snapshot{
		Free:      free,
		Occupied:  occupied,
		Total:     len(st.states),
		UpdatedAt: now,
		Spaces:    make([]status.SpaceStatus, len(st.states)),
	}
	for i := range st.states {
		s := &st.states[i]
		ss := status.SpaceStatus{ID: st.spaces[i].ID, Status: s.status.String()}
		if since, ok := s.OccupiedSince(); ok {
			elapsed := s.Elapsed(now)
			ss.OccupiedSince = &since
			ss.ElapsedSeconds = elapsed.Seconds()
			ss.Elapsed = units.FormatClock(elapsed)
		}
		snap.Spaces[i] = ss
	}
	return snap
}

// Checkpoints returns the in-progress occupancies.
func (st *Store) Checkpoints() []Checkpoint {
	var cps []Checkpoint
	for i := range st.states {
		if since, ok := st.states[i].OccupiedSince(); ok {
			cps = append(cps, Checkpoint{SpaceID: st.spaces[i].ID, OccupiedSince: since})
		}
	}
	return cps
}

// Restore marks the checkpointed spaces Occupied from their recorded start.
// Checkpoints for unknown space IDs are ignored. It returns how many spaces
// were restored.
func (st *Store) Restore(cps []Checkpoint) int {
	index := make(map[int]int, len(st.spaces))
	for i, s := range st.spaces {
		index[s.ID] = i
	}
	n := 0
	for _, cp := range cps {
		i, ok := index[cp.SpaceID]
		if !ok || cp.OccupiedSince.IsZero() {
			continue
		}
		st.states[i] = SpaceState{status: Occupied, occupiedSince: cp.OccupiedSince}
		n++
	}
	return n
}

// Occupied returns the current status of every space as booleans.
func (st *Store) Occupied() []bool {
	out := make([]bool, len(st.states))
	for i := range st.states {
		out[i] = st.states[i].status == Occupied
	}
	return out
}
