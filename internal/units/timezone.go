package units

import (
	"fmt"
	"time"

	// Embedded so session dates resolve the same on hosts without a tz database.
	_ "time/tzdata"
)

// LocalTimezone selects the host's local zone.
const LocalTimezone = "Local"

// IsTimezoneValid checks if the given timezone is valid by attempting to load it from the tz database
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// ResolveLocation maps a configured timezone name to a *time.Location.
// An empty name or "Local" yields the host zone.
func ResolveLocation(tz string) (*time.Location, error) {
	if tz == "" || tz == LocalTimezone {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", tz, err)
	}
	return loc, nil
}

// CalendarDate returns the YYYY-MM-DD date of t in loc. Sessions are dated by
// arrival in the site's zone, not UTC.
func CalendarDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(time.DateOnly)
}
