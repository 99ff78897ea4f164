package api

import (
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/parking.report/internal/sessions"
	"github.com/banshee-data/parking.report/internal/units"
)

// Summary aggregates a set of sessions. Quantiles use the empirical
// definition, so with an even count the median is the lower middle value.
type Summary struct {
	Count         int            `json:"count"`
	Revenue       float64        `json:"revenue"`
	MeanMinutes   float64        `json:"mean_minutes"`
	MedianMinutes float64        `json:"median_minutes"`
	P90Minutes    float64        `json:"p90_minutes"`
	PerSpace      []SpaceSummary `json:"per_space"`
}

// SpaceSummary is the per-space slice of a Summary.
type SpaceSummary struct {
	SpaceID int     `json:"space_number"`
	Count   int     `json:"count"`
	Revenue float64 `json:"revenue"`
}

// Summarize computes totals and duration statistics over list. PerSpace is
// ordered by space ID.
func Summarize(list []*sessions.Session) Summary {
	sum := Summary{Count: len(list), PerSpace: []SpaceSummary{}}
	if len(list) == 0 {
		return sum
	}

	durations := make([]float64, len(list))
	perSpace := map[int]*SpaceSummary{}
	var revenue float64
	for i, s := range list {
		durations[i] = s.DurationMinutes
		revenue += s.Cost

		ps, ok := perSpace[s.SpaceID]
		if !ok {
			ps = &SpaceSummary{SpaceID: s.SpaceID}
			perSpace[s.SpaceID] = ps
		}
		ps.Count++
		ps.Revenue += s.Cost
	}

	slices.Sort(durations)
	sum.Revenue = units.RoundCents(revenue)
	sum.MeanMinutes = stat.Mean(durations, nil)
	sum.MedianMinutes = stat.Quantile(0.5, stat.Empirical, durations, nil)
	sum.P90Minutes = stat.Quantile(0.9, stat.Empirical, durations, nil)

	for _, ps := range perSpace {
		ps.Revenue = units.RoundCents(ps.Revenue)
		sum.PerSpace = append(sum.PerSpace, *ps)
	}
	slices.SortFunc(sum.PerSpace, func(a, b SpaceSummary) int { return a.SpaceID - b.SpaceID })
	return sum
}
