package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/parking.report/internal/sessions"
)

// AppendSession stores a completed session. A repeated session ID is
// ignored so retried writes stay idempotent.
func (db *DB) AppendSession(ctx context.Context, s *sessions.Session) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO parking_sessions
			(session_id, space_number, arrival, departure, date, duration_minutes, total)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.SpaceID, formatTime(s.Arrival), formatTime(s.Departure),
		s.Date, s.DurationMinutes, s.Cost,
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	return nil
}

// SessionFilter narrows ListSessions. Zero values mean no constraint.
type SessionFilter struct {
	SpaceID int
	Date    string
	Limit   int
}

func (f SessionFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.SpaceID > 0 {
		clauses = append(clauses, "space_number = ?")
		args = append(args, f.SpaceID)
	}
	if f.Date != "" {
		clauses = append(clauses, "date = ?")
		args = append(args, f.Date)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListSessions returns matching sessions, most recent departure first.
func (db *DB) ListSessions(ctx context.Context, f SessionFilter) ([]*sessions.Session, error) {
	where, args := f.where()
	query := `SELECT session_id, space_number, arrival, departure, date, duration_minutes, total
		FROM parking_sessions` + where + ` ORDER BY departure DESC, session_id`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []*sessions.Session
	for rows.Next() {
		var (
			s                  sessions.Session
			arrival, departure string
		)
		if err := rows.Scan(&s.ID, &s.SpaceID, &arrival, &departure, &s.Date, &s.DurationMinutes, &s.Cost); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if s.Arrival, err = parseTime(arrival); err != nil {
			return nil, err
		}
		if s.Departure, err = parseTime(departure); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return out, nil
}

// CountSessions returns the number of sessions matching f, ignoring Limit.
func (db *DB) CountSessions(ctx context.Context, f SessionFilter) (int, error) {
	where, args := f.where()
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM parking_sessions"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}
