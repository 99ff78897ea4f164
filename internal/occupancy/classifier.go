// Package occupancy decides per-space occupancy from detector frames and
// tracks each space's state across cycles.
package occupancy

import (
	"strings"

	"github.com/banshee-data/parking.report/internal/detector"
	"github.com/banshee-data/parking.report/internal/spaces"
)

// Classifier maps one frame's detections to per-space presence.
type Classifier struct {
	classIDs      map[int]bool
	classNames    map[string]bool
	minConfidence float64
}

// NewClassifier returns a classifier that counts detections whose class id
// is in ids or whose class name (case-insensitive) is in names. Detections
// reporting a confidence below minConfidence are ignored; a confidence of 0
// means the detector did not report one.
func NewClassifier(ids []int, names []string, minConfidence float64) *Classifier {
	c := &Classifier{
		classIDs:      make(map[int]bool, len(ids)),
		classNames:    make(map[string]bool, len(names)),
		minConfidence: minConfidence,
	}
	for _, id := range ids {
		c.classIDs[id] = true
	}
	for _, name := range names {
		c.classNames[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return c
}

// Qualifies reports whether d is a target vehicle.
func (c *Classifier) Qualifies(d detector.Detection) bool {
	if d.Confidence > 0 && d.Confidence < c.minConfidence {
		return false
	}
	if d.ClassID != detector.UnknownClassID && c.classIDs[d.ClassID] {
		return true
	}
	return d.ClassName != "" && c.classNames[strings.ToLower(d.ClassName)]
}

// IsOccupied reports whether any qualifying detection's centroid lies inside
// or on the boundary of poly.
func (c *Classifier) IsOccupied(poly spaces.Polygon, dets []detector.Detection) bool {
	for _, d := range dets {
		if c.Qualifies(d) && poly.Contains(d.Box.Centroid()) {
			return true
		}
	}
	return false
}

// ClassifyAll evaluates every space against the frame. One detection may
// mark several overlapping spaces.
func (c *Classifier) ClassifyAll(all []spaces.Space, dets []detector.Detection) []bool {
	centroids := make([]spaces.Point, 0, len(dets))
	for _, d := range dets {
		if c.Qualifies(d) {
			centroids = append(centroids, d.Box.Centroid())
		}
	}

	present := make([]bool, len(all))
	for i, s := range all {
		for _, p := range centroids {
			if s.Polygon.Contains(p) {
				present[i] = true
				break
			}
		}
	}
	return present
}
