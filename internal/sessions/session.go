// Package sessions builds completed parking sessions and hands them to a
// durable sink.
package sessions

import (
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/parking.report/internal/units"
)

// Session is one completed arrival-to-departure occupancy of a space.
type Session struct {
	ID              string    `json:"session_id"`
	SpaceID         int       `json:"space_number"`
	Arrival         time.Time `json:"arrival"`
	Departure       time.Time `json:"departure"`
	Date            string    `json:"date"` // arrival date in the site timezone
	DurationMinutes float64   `json:"duration_minutes"`
	Cost            float64   `json:"total"`
}

// NewSession prices the occupancy of spaceID from arrival to departure.
// DurationMinutes is exact; only Cost is rounded.
func NewSession(spaceID int, arrival, departure time.Time, ratePerMinute float64, loc *time.Location) *Session {
	minutes := units.Minutes(departure.Sub(arrival))
	return &Session{
		ID:              uuid.New().String(),
		SpaceID:         spaceID,
		Arrival:         arrival,
		Departure:       departure,
		Date:            units.CalendarDate(arrival, loc),
		DurationMinutes: minutes,
		Cost:            units.Cost(minutes, ratePerMinute),
	}
}

// Duration returns the occupied time.
func (s *Session) Duration() time.Duration {
	return s.Departure.Sub(s.Arrival)
}
