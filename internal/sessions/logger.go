package sessions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/parking.report/internal/monitoring"
)

// Sink durably appends completed sessions.
type Sink interface {
	AppendSession(ctx context.Context, s *Session) error
}

// SinkError reports a session the sink failed to store.
type SinkError struct {
	Session *Session
	Err     error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("append session %s (space %d): %v", e.Session.ID, e.Session.SpaceID, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// ErrClosed is returned by Close when called twice and reported for sessions
// recorded after Close.
var ErrClosed = errors.New("session logger closed")

// Options configure a Logger.
type Options struct {
	// MinDuration drops sessions shorter than this. Zero records everything.
	MinDuration time.Duration
	// RatePerMinute prices each session; zero charges nothing.
	RatePerMinute float64
	// Location dates sessions; nil uses time.Local.
	Location *time.Location

	// Async hands sessions to a single background writer through a bounded
	// FIFO queue so a slow sink never stalls the loop.
	Async        bool
	QueueSize    int
	MaxRetries   int
	RetryBackoff time.Duration

	Metrics *monitoring.Metrics
}

// Stats counts what the logger did with closed occupancies.
type Stats struct {
	Recorded int64 // stored by the sink
	Filtered int64 // shorter than MinDuration
	Dropped  int64 // async queue full or logger closed
	Failed   int64 // sink rejected after all retries
}

// Logger turns closed occupancies into sessions and stores them.
type Logger struct {
	sink Sink
	opts Options

	queue  chan *Session
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool

	recorded, filtered, dropped, failed atomic.Int64
}

// NewLogger returns a Logger writing to sink. In async mode a writer
// goroutine runs until Close.
func NewLogger(sink Sink, opts Options) *Logger {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}

	l := &Logger{sink: sink, opts: opts}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	if opts.Async {
		l.queue = make(chan *Session, opts.QueueSize)
		l.done = make(chan struct{})
		go l.run()
	}
	return l
}

// Record builds the session for spaceID and stores it. It returns the
// session and true when it was handed to the sink, or false when it was
// filtered or dropped. Sink failures are logged and counted, never returned.
func (l *Logger) Record(ctx context.Context, spaceID int, arrival, departure time.Time) (*Session, bool) {
	// A session lasting exactly MinDuration is kept; only shorter ones are filtered.
	if d := departure.Sub(arrival); d < l.opts.MinDuration {
		l.filtered.Add(1)
		l.opts.Metrics.SessionFiltered()
		monitoring.Debugf("space %d: session of %s below minimum %s, not recorded", spaceID, d, l.opts.MinDuration)
		return nil, false
	}

	s := NewSession(spaceID, arrival, departure, l.opts.RatePerMinute, l.opts.Location)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.drop(s, ErrClosed)
		return s, false
	}

	if !l.opts.Async {
		l.store(ctx, s)
		return s, true
	}

	select {
	case l.queue <- s:
		return s, true
	default:
		l.drop(s, errors.New("session queue full"))
		return s, false
	}
}

func (l *Logger) drop(s *Session, reason error) {
	l.dropped.Add(1)
	l.opts.Metrics.SessionDropped()
	monitoring.Logf("space %d: dropping session %s: %v", s.SpaceID, s.ID, reason)
}

func (l *Logger) store(ctx context.Context, s *Session) {
	if err := l.sink.AppendSession(ctx, s); err != nil {
		l.fail(&SinkError{Session: s, Err: err})
		return
	}
	l.succeed(s)
}

func (l *Logger) succeed(s *Session) {
	l.recorded.Add(1)
	l.opts.Metrics.SessionRecorded(s.DurationMinutes)
	monitoring.Logf("space %d: session %s recorded, %.2f min, total %.2f", s.SpaceID, s.ID, s.DurationMinutes, s.Cost)
}

func (l *Logger) fail(err *SinkError) {
	l.failed.Add(1)
	l.opts.Metrics.SinkError()
	monitoring.Logf("session sink error: %v", err)
}

// run drains the queue in order. One writer keeps sessions in arrival order.
func (l *Logger) run() {
	defer close(l.done)
	for s := range l.queue {
		l.storeWithRetry(s)
	}
}

func (l *Logger) storeWithRetry(s *Session) {
	var err error
	for attempt := 0; attempt <= l.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(l.opts.RetryBackoff * time.Duration(attempt))
			select {
			case <-t.C:
			case <-l.ctx.Done():
				t.Stop()
				l.fail(&SinkError{Session: s, Err: fmt.Errorf("shutdown before retry: %w", err)})
				return
			}
		}
		if err = l.sink.AppendSession(l.ctx, s); err == nil {
			l.succeed(s)
			return
		}
		monitoring.Debugf("space %d: append attempt %d failed: %v", s.SpaceID, attempt+1, err)
	}
	l.fail(&SinkError{Session: s, Err: err})
}

// Close stops accepting sessions and waits for queued ones to be written.
// If ctx ends first, pending retries are abandoned and ctx.Err is returned.
func (l *Logger) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	if l.queue != nil {
		close(l.queue)
	}
	l.mu.Unlock()

	if l.done == nil {
		l.cancel()
		return nil
	}

	select {
	case <-l.done:
		l.cancel()
		return nil
	case <-ctx.Done():
		l.cancel()
		<-l.done
		return ctx.Err()
	}
}

// Stats returns a snapshot of the logger's counters.
func (l *Logger) Stats() Stats {
	return Stats{
		Recorded: l.recorded.Load(),
		Filtered: l.filtered.Load(),
		Dropped:  l.dropped.Load(),
		Failed:   l.failed.Load(),
	}
}
