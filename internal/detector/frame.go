// Package detector reads object-detection results produced by an external
// detector process, one JSON document per frame.
package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/parking.report/internal/spaces"
)

// UnknownClassID marks a detection whose class id was not reported.
const UnknownClassID = -1

// BoundingBox is an axis-aligned pixel box, (X1,Y1) top-left and (X2,Y2)
// bottom-right.
type BoundingBox struct {
	X1, Y1, X2, Y2 int
}

// Centroid returns the box centre using integer floor division.
func (b BoundingBox) Centroid() spaces.Point {
	return spaces.Point{X: floorDiv2(b.X1 + b.X2), Y: floorDiv2(b.Y1 + b.Y2)}
}

func floorDiv2(v int) int {
	if v < 0 && v%2 != 0 {
		return v/2 - 1
	}
	return v / 2
}

// Detection is one object reported by the detector for a frame.
type Detection struct {
	ClassID    int
	ClassName  string
	Confidence float64 // 0 when not reported
	Box        BoundingBox
}

// Frame is the detector output for one captured image.
type Frame struct {
	Seq        uint64
	Timestamp  time.Time // zero when the detector did not stamp the frame
	Detections []Detection
}

// ErrMalformedFrame is wrapped by ParseFrame for lines that are not a usable
// frame. Callers skip such lines.
var ErrMalformedFrame = errors.New("malformed detector frame")

type wireFrame struct {
	Seq        uint64          `json:"seq"`
	Timestamp  *float64        `json:"timestamp"`
	Detections []wireDetection `json:"detections"`
	Error      string          `json:"error"`
}

type wireDetection struct {
	ClassID    *int      `json:"class_id"`
	ClassName  string    `json:"class_name"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"`
}

// ParseFrame decodes one detector line. A line carrying an "error" field
// yields a *DetectorError; any other unusable line wraps ErrMalformedFrame.
func ParseFrame(line []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(line, &w); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if w.Error != "" {
		return Frame{}, &DetectorError{Err: errors.New(w.Error)}
	}

	f := Frame{Seq: w.Seq, Detections: make([]Detection, 0, len(w.Detections))}
	if w.Timestamp != nil {
		ts := *w.Timestamp
		if ts < 0 || math.IsNaN(ts) || math.IsInf(ts, 0) {
			return Frame{}, fmt.Errorf("%w: invalid timestamp %v", ErrMalformedFrame, ts)
		}
		sec, frac := math.Modf(ts)
		f.Timestamp = time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3)
	}

	for i, d := range w.Detections {
		if len(d.BBox) != 4 {
			return Frame{}, fmt.Errorf("%w: detection %d has %d bbox values, want 4", ErrMalformedFrame, i, len(d.BBox))
		}
		det := Detection{
			ClassID:    UnknownClassID,
			ClassName:  d.ClassName,
			Confidence: d.Confidence,
			// Coordinates are truncated to whole pixels.
			Box: BoundingBox{X1: int(d.BBox[0]), Y1: int(d.BBox[1]), X2: int(d.BBox[2]), Y2: int(d.BBox[3])},
		}
		if d.ClassID != nil {
			det.ClassID = *d.ClassID
		}
		f.Detections = append(f.Detections, det)
	}
	return f, nil
}
