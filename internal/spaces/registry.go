// Package spaces loads the fixed set of parking space boundaries monitored
// during a run.
package spaces

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/parking.report/internal/fsutil"
)

// Space is one monitored parking space. IDs are 1-based and follow the order
// of the definitions file; they never change during a run.
type Space struct {
	ID      int     `json:"id"`
	Polygon Polygon `json:"polygon"`
}

// ConfigurationError reports a space definitions source that cannot be used.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("space definitions: %v", e.Err)
	}
	return fmt.Sprintf("space definitions %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ErrNoSpaces is wrapped by ConfigurationError when the source defines no spaces.
var ErrNoSpaces = errors.New("no spaces defined")

// MarshalJSON encodes a polygon as four [x, y] pairs.
func (poly Polygon) MarshalJSON() ([]byte, error) {
	pairs := make([][2]int, len(poly))
	for i, p := range poly {
		pairs[i] = [2]int{p.X, p.Y}
	}
	return json.Marshal(pairs)
}

// UnmarshalJSON decodes four [x, y] pairs.
func (poly *Polygon) UnmarshalJSON(data []byte) error {
	var pairs [][]int
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	if len(pairs) != len(poly) {
		return fmt.Errorf("polygon has %d points, want %d", len(pairs), len(poly))
	}
	for i, pair := range pairs {
		if len(pair) != 2 {
			return fmt.Errorf("point %d has %d coordinates, want 2", i, len(pair))
		}
		poly[i] = Point{X: pair[0], Y: pair[1]}
	}
	return nil
}

// Load reads space definitions from path on the local filesystem.
func Load(path string) ([]Space, error) {
	return LoadFS(fsutil.OSFileSystem{}, path)
}

// LoadFS reads space definitions from path on fsys.
func LoadFS(fsys fsutil.FileSystem, path string) ([]Space, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	spaces, err := Decode(bytes.NewReader(data))
	if err != nil {
		var ce *ConfigurationError
		if errors.As(err, &ce) {
			ce.Path = path
			return nil, ce
		}
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	return spaces, nil
}

// Decode parses a JSON array of polygons and assigns IDs in definition
// order. Duplicate polygons are kept as distinct spaces.
func Decode(r io.Reader) ([]Space, error) {
	var raw []json.RawMessage
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("decode: %w", err)}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, &ConfigurationError{Err: errors.New("decode: unexpected data after space list")}
	}
	if len(raw) == 0 {
		return nil, &ConfigurationError{Err: ErrNoSpaces}
	}

	spaces := make([]Space, len(raw))
	for i, msg := range raw {
		var poly Polygon
		if err := json.Unmarshal(msg, &poly); err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("space %d: %w", i+1, err)}
		}
		spaces[i] = Space{ID: i + 1, Polygon: poly}
	}
	return spaces, nil
}

// Encode writes polygons in the format Decode reads.
func Encode(w io.Writer, polygons []Polygon) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(polygons); err != nil {
		return fmt.Errorf("encode spaces: %w", err)
	}
	return nil
}

// Save atomically writes polygons to path on fsys.
func Save(fsys fsutil.FileSystem, path string, polygons []Polygon) error {
	var buf bytes.Buffer
	if err := Encode(&buf, polygons); err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(fsys, path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("save spaces %s: %w", path, err)
	}
	return nil
}

// Polygons returns the boundary of each space in ID order.
func Polygons(spaces []Space) []Polygon {
	out := make([]Polygon, len(spaces))
	for i, s := range spaces {
		out[i] = s.Polygon
	}
	return out
}
