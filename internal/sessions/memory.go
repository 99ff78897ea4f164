package sessions

import (
	"context"
	"sync"
)

// MemorySink keeps sessions in memory. It backs tests and dry runs without
// a database.
type MemorySink struct {
	mu       sync.Mutex
	sessions []*Session
	failures []error
	attempts int
}

// NewMemorySink returns an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailNext makes the next len(errs) appends fail with errs in order.
func (m *MemorySink) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, errs...)
}

// AppendSession stores a copy of s unless a queued failure is pending.
func (m *MemorySink) AppendSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	cp := *s
	m.sessions = append(m.sessions, &cp)
	return nil
}

// Sessions returns the stored sessions in append order.
func (m *MemorySink) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Session(nil), m.sessions...)
}

// Attempts returns how many appends were tried, including failed ones.
func (m *MemorySink) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}
