package occupancy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/banshee-data/parking.report/internal/detector"
	"github.com/banshee-data/parking.report/internal/monitoring"
	"github.com/banshee-data/parking.report/internal/sessions"
	"github.com/banshee-data/parking.report/internal/spaces"
	"github.com/banshee-data/parking.report/internal/status"
	"github.com/banshee-data/parking.report/internal/timeutil"
)

// FrameSource supplies detector frames; see detector.Source.
type FrameSource interface {
	Next(ctx context.Context) (detector.Frame, error)
}

// SessionRecorder stores closed occupancies; see sessions.Logger.
type SessionRecorder interface {
	Record(ctx context.Context, spaceID int, arrival, departure time.Time) (*sessions.Session, bool)
}

// Checkpointer persists in-progress occupancies.
type Checkpointer interface {
	SaveOccupancy(ctx context.Context, cps []Checkpoint) error
}

// Config wires a Monitor.
type Config struct {
	Spaces     []spaces.Space
	Classifier *Classifier
	Sessions   SessionRecorder
	Publisher  status.Publisher

	// Checkpointer, when set, receives the in-progress occupancies every
	// cycle in which a space changes status.
	Checkpointer Checkpointer

	DebounceWindow   int
	DebounceRequired int

	Clock   timeutil.Clock
	Metrics *monitoring.Metrics
}

// Monitor runs the classification loop. All state is owned by the goroutine
// calling Run or RunCycle.
type Monitor struct {
	spaces      []spaces.Space
	classifier  *Classifier
	recorder    SessionRecorder
	publisher   status.Publisher
	checkpoints Checkpointer
	debounce    *Debouncer
	clock       timeutil.Clock
	metrics     *monitoring.Metrics

	store    *Store
	lastTime time.Time
	cycles   uint64
}

// New validates cfg and returns a Monitor with every space Free.
func New(cfg Config) (*Monitor, error) {
	if len(cfg.Spaces) == 0 {
		return nil, errors.New("monitor: no spaces")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("monitor: classifier is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("monitor: session recorder is required")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("monitor: status publisher is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Monitor{
		spaces:      cfg.Spaces,
		classifier:  cfg.Classifier,
		recorder:    cfg.Sessions,
		publisher:   cfg.Publisher,
		checkpoints: cfg.Checkpointer,
		debounce:    NewDebouncer(len(cfg.Spaces), cfg.DebounceWindow, cfg.DebounceRequired),
		clock:       clock,
		metrics:     cfg.Metrics,
		store:       NewStore(cfg.Spaces),
	}, nil
}

// Store exposes the state store, for inspection in tests and tools.
func (m *Monitor) Store() *Store { return m.store }

// Restore seeds in-progress occupancies from a previous run. Call before Run.
func (m *Monitor) Restore(cps []Checkpoint) int {
	n := m.store.Restore(cps)
	m.debounce.Prime(m.store.Occupied())
	for _, cp := range cps {
		if cp.OccupiedSince.After(m.lastTime) {
			m.lastTime = cp.OccupiedSince
		}
	}
	return n
}

// CycleResult summarises one cycle.
type CycleResult struct {
	Time     time.Time
	Free     int
	Occupied int
	Sessions []*sessions.Session
	Opened   []int
}

// RunCycle classifies one frame, advances every space and publishes the
// resulting snapshot. Side-effect failures are logged and never abort the
// cycle.
func (m *Monitor) RunCycle(ctx context.Context, f detector.Frame) CycleResult {
	now := m.cycleTime(f)
	m.cycles++

	present := m.debounce.Apply(m.classifier.ClassifyAll(m.spaces, f.Detections))
	step := m.store.Step(present, now)

	res := CycleResult{Time: now, Opened: step.Opened}
	for _, id := range step.Opened {
		m.metrics.ObserveTransition(status.Occupied)
		monitoring.Debugf("space %d: occupied at %s", id, now.Format(time.RFC3339))
	}
	for _, c := range step.Closed {
		m.metrics.ObserveTransition(status.Free)
		monitoring.Debugf("space %d: free at %s after %s", c.SpaceID, now.Format(time.RFC3339), c.Departure.Sub(c.Arrival))
		if s, ok := m.recorder.Record(ctx, c.SpaceID, c.Arrival, c.Departure); ok {
			res.Sessions = append(res.Sessions, s)
		}
	}

	if m.checkpoints != nil && step.Changed() {
		if err := m.checkpoints.SaveOccupancy(ctx, m.store.Checkpoints()); err != nil {
			m.metrics.SinkError()
			monitoring.Logf("occupancy checkpoint failed: %v", err)
		}
	}

	snap := m.store.Snapshot(now)
	res.Free, res.Occupied = snap.Free, snap.Occupied
	if err := m.publisher.Publish(snap); err != nil {
		m.metrics.PublishError()
		monitoring.Logf("status publish failed: %v", err)
	}
	m.metrics.ObserveCycle(len(f.Detections), snap.Free, snap.Occupied)
	return res
}

// cycleTime stamps the cycle with the frame's timestamp, or the clock when
// the detector gave none. Time never runs backwards between cycles.
func (m *Monitor) cycleTime(f detector.Frame) time.Time {
	now := f.Timestamp
	if now.IsZero() {
		now = m.clock.Now()
	}
	if now.Before(m.lastTime) {
		monitoring.Debugf("frame %d timestamp %s precedes previous cycle, clamping", f.Seq, now.Format(time.RFC3339Nano))
		now = m.lastTime
	}
	m.lastTime = now
	return now
}

// PublishCurrent publishes the snapshot of the current state, used before
// the first frame arrives.
func (m *Monitor) PublishCurrent() error {
	now := m.clock.Now()
	if now.Before(m.lastTime) {
		now = m.lastTime
	}
	if err := m.publisher.Publish(m.store.Snapshot(now)); err != nil {
		m.metrics.PublishError()
		return fmt.Errorf("publish initial status: %w", err)
	}
	return nil
}

// Run processes frames until the source is exhausted, fails, or ctx ends.
// Exhaustion returns nil; cancellation returns ctx.Err(); a detector failure
// is returned as is. Open occupancies are left open.
func (m *Monitor) Run(ctx context.Context, src FrameSource) error {
	if err := m.PublishCurrent(); err != nil {
		monitoring.Logf("%v", err)
	}

	for {
		f, err := src.Next(ctx)
		switch {
		case err == nil:
			m.RunCycle(ctx, f)
		case errors.Is(err, detector.ErrMalformedFrame):
			m.metrics.SkippedLine()
			monitoring.Logf("skipping detector output: %v", err)
		case errors.Is(err, io.EOF):
			free, occupied := m.store.Counts()
			monitoring.Logf("detector stream ended after %d cycles (free=%d occupied=%d)", m.cycles, free, occupied)
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return err
		}
	}
}

// Cycles returns how many cycles have run.
func (m *Monitor) Cycles() uint64 { return m.cycles }
