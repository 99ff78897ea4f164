package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/parking.report/internal/monitoring"
)

var arrival = time.Date(2024, 10, 5, 14, 0, 0, 0, time.UTC)

func init() {
	monitoring.SetLogger(nil)
}

func TestRecordMinimumDurationFilter(t *testing.T) {
	sink := NewMemorySink()
	l := NewLogger(sink, Options{MinDuration: 10 * time.Second, RatePerMinute: 0.20, Location: time.UTC})
	defer l.Close(context.Background())

	s, ok := l.Record(context.Background(), 1, arrival, arrival.Add(3*time.Second))
	assert.False(t, ok)
	assert.Nil(t, s)

	s, ok = l.Record(context.Background(), 2, arrival, arrival.Add(15*time.Second))
	require.True(t, ok)
	assert.Equal(t, 0.05, s.Cost)

	stored := sink.Sessions()
	require.Len(t, stored, 1)
	assert.Equal(t, 2, stored[0].SpaceID)
	assert.Equal(t, 0.25, stored[0].DurationMinutes)
	assert.Equal(t, 0.05, stored[0].Cost)

	assert.Equal(t, Stats{Recorded: 1, Filtered: 1}, l.Stats())
}

// The minimum is inclusive: exactly MinDuration is recorded, one nanosecond
// less is filtered.
func TestRecordSessionAtExactMinimumIsKept(t *testing.T) {
	sink := NewMemorySink()
	l := NewLogger(sink, Options{MinDuration: 10 * time.Second})
	defer l.Close(context.Background())

	_, ok := l.Record(context.Background(), 1, arrival, arrival.Add(10*time.Second))
	assert.True(t, ok)
	_, ok = l.Record(context.Background(), 2, arrival, arrival.Add(10*time.Second-time.Nanosecond))
	assert.False(t, ok)
	require.Len(t, sink.Sessions(), 1)
	assert.Equal(t, 1, sink.Sessions()[0].SpaceID)
}

func TestRecordZeroMinimumRecordsEverything(t *testing.T) {
	sink := NewMemorySink()
	l := NewLogger(sink, Options{RatePerMinute: 0.20})
	defer l.Close(context.Background())

	_, ok := l.Record(context.Background(), 1, arrival, arrival)
	assert.True(t, ok)
	require.Len(t, sink.Sessions(), 1)
	assert.Equal(t, 0.0, sink.Sessions()[0].Cost)
}

func TestRecordSinkFailureIsIsolated(t *testing.T) {
	sink := NewMemorySink()
	sink.FailNext(errors.New("database is locked"))
	metrics := monitoring.NewMetrics()
	l := NewLogger(sink, Options{Metrics: metrics})
	defer l.Close(context.Background())

	_, ok := l.Record(context.Background(), 1, arrival, arrival.Add(time.Minute))
	assert.True(t, ok)
	_, ok = l.Record(context.Background(), 2, arrival, arrival.Add(time.Minute))
	assert.True(t, ok)

	require.Len(t, sink.Sessions(), 1)
	assert.Equal(t, 2, sink.Sessions()[0].SpaceID)
	assert.Equal(t, Stats{Recorded: 1, Failed: 1}, l.Stats())
}

func TestAsyncPreservesOrderAndRetries(t *testing.T) {
	sink := NewMemorySink()
	sink.FailNext(errors.New("busy"), errors.New("busy"))
	l := NewLogger(sink, Options{Async: true, QueueSize: 16, MaxRetries: 3, RetryBackoff: time.Millisecond})

	for i := 1; i <= 5; i++ {
		_, ok := l.Record(context.Background(), 1, arrival.Add(time.Duration(i)*time.Minute), arrival.Add(time.Duration(i)*time.Minute+30*time.Second))
		require.True(t, ok)
	}
	require.NoError(t, l.Close(context.Background()))

	stored := sink.Sessions()
	require.Len(t, stored, 5)
	for i := 1; i < len(stored); i++ {
		assert.True(t, stored[i-1].Arrival.Before(stored[i].Arrival), "sessions out of arrival order at %d", i)
	}
	assert.Equal(t, 7, sink.Attempts())
	assert.Equal(t, Stats{Recorded: 5}, l.Stats())
}

func TestAsyncGivesUpAfterRetries(t *testing.T) {
	sink := NewMemorySink()
	boom := errors.New("disk I/O error")
	sink.FailNext(boom, boom, boom)
	l := NewLogger(sink, Options{Async: true, MaxRetries: 2, RetryBackoff: time.Millisecond})

	_, ok := l.Record(context.Background(), 1, arrival, arrival.Add(time.Minute))
	require.True(t, ok)
	require.NoError(t, l.Close(context.Background()))

	assert.Empty(t, sink.Sessions())
	assert.Equal(t, 3, sink.Attempts())
	assert.Equal(t, int64(1), l.Stats().Failed)
}

type blockingSink struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
	inner   *MemorySink
}

func (b *blockingSink) AppendSession(ctx context.Context, s *Session) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.inner.AppendSession(ctx, s)
}

func TestAsyncQueueFullDrops(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{}), started: make(chan struct{}), inner: NewMemorySink()}
	l := NewLogger(sink, Options{Async: true, QueueSize: 1, Metrics: monitoring.NewMetrics()})

	_, ok := l.Record(context.Background(), 1, arrival, arrival.Add(time.Minute))
	require.True(t, ok)
	<-sink.started // the writer holds the first session

	_, ok = l.Record(context.Background(), 2, arrival, arrival.Add(time.Minute))
	require.True(t, ok) // fills the queue
	_, ok = l.Record(context.Background(), 3, arrival, arrival.Add(time.Minute))
	assert.False(t, ok)

	close(sink.release)
	require.NoError(t, l.Close(context.Background()))

	assert.Len(t, sink.inner.Sessions(), 2)
	assert.Equal(t, Stats{Recorded: 2, Dropped: 1}, l.Stats())
}

func TestRecordAfterClose(t *testing.T) {
	sink := NewMemorySink()
	l := NewLogger(sink, Options{})
	require.NoError(t, l.Close(context.Background()))
	assert.ErrorIs(t, l.Close(context.Background()), ErrClosed)

	_, ok := l.Record(context.Background(), 1, arrival, arrival.Add(time.Minute))
	assert.False(t, ok)
	assert.Empty(t, sink.Sessions())
	assert.Equal(t, int64(1), l.Stats().Dropped)
}

func TestCloseTimeoutAbandonsRetries(t *testing.T) {
	sink := NewMemorySink()
	boom := errors.New("unreachable")
	sink.FailNext(boom, boom, boom, boom)
	l := NewLogger(sink, Options{Async: true, MaxRetries: 3, RetryBackoff: time.Hour})

	_, ok := l.Record(context.Background(), 1, arrival, arrival.Add(time.Minute))
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Close(ctx), context.DeadlineExceeded)
	assert.Equal(t, int64(1), l.Stats().Failed)
}

func TestSinkErrorMessage(t *testing.T) {
	s := NewSession(3, arrival, arrival.Add(time.Minute), 0.20, time.UTC)
	err := &SinkError{Session: s, Err: errors.New("constraint failed")}
	assert.Contains(t, err.Error(), "space 3")
	assert.Contains(t, err.Error(), s.ID)
	assert.ErrorContains(t, errors.Unwrap(err), "constraint failed")
}
