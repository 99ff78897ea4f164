package spaces

import (
	"bytes"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/parking.report/internal/fsutil"
)

const threeSpaces = `[
  [[10, 10], [110, 10], [110, 210], [10, 210]],
  [[120, 10], [220, 10], [220, 210], [120, 210]],
  [[230, 10], [330, 10], [330, 210], [230, 210]]
]`

func TestDecode(t *testing.T) {
	got, err := Decode(strings.NewReader(threeSpaces))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	want := []Space{
		{ID: 1, Polygon: Polygon{{10, 10}, {110, 10}, {110, 210}, {10, 210}}},
		{ID: 2, Polygon: Polygon{{120, 10}, {220, 10}, {220, 210}, {120, 210}}},
		{ID: 3, Polygon: Polygon{{230, 10}, {330, 10}, {330, 210}, {230, 210}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTrailingWhitespace(t *testing.T) {
	got, err := Decode(strings.NewReader(threeSpaces + "\n\n  "))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d spaces, want 3", len(got))
	}
}

func TestDecodeDuplicatesAreDistinct(t *testing.T) {
	src := `[[[0,0],[10,0],[10,10],[0,10]], [[0,0],[10,0],[10,10],[0,10]]]`
	got, err := Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d spaces, want 2", len(got))
	}
	if got[0].ID != 1 || got[1].ID != 2 {
		t.Errorf("IDs = %d, %d; want 1, 2", got[0].ID, got[1].ID)
	}
	if diff := cmp.Diff(got[0].Polygon, got[1].Polygon); diff != "" {
		t.Errorf("duplicate polygons differ:\n%s", diff)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantMsg string
	}{
		{"empty input", "", "decode"},
		{"truncated", `[[[0,0],[10,0]`, "decode"},
		{"not an array", `{"spaces": 1}`, "decode"},
		{"trailing garbage", `[[[0,0],[10,0],[10,10],[0,10]]] trailing garbage`, "unexpected data after space list"},
		{"second document", `[[[0,0],[10,0],[10,10],[0,10]]] []`, "unexpected data after space list"},
		{"empty list", `[]`, "no spaces defined"},
		{"three points", `[[[0,0],[10,0],[10,10]]]`, "space 1: polygon has 3 points"},
		{"five points", `[[[0,0],[1,0],[2,0],[3,0],[4,0]]]`, "polygon has 5 points"},
		{"bad coordinate", `[[[0,0],[10,0],[10],[0,10]]]`, "point 2 has 1 coordinates"},
		{"second space bad", `[[[0,0],[1,0],[1,1],[0,1]], [[0,0]]]`, "space 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.src))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigurationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestDecodeEmptyListIsErrNoSpaces(t *testing.T) {
	_, err := Decode(strings.NewReader(`[]`))
	if !errors.Is(err, ErrNoSpaces) {
		t.Errorf("expected ErrNoSpaces, got %v", err)
	}
}

func TestLoadFSMissing(t *testing.T) {
	m := fsutil.NewMemoryFileSystem()
	_, err := LoadFS(m, "/etc/parking/spaces.json")

	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if ce.Path != "/etc/parking/spaces.json" {
		t.Errorf("Path = %q", ce.Path)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected wrapped ErrNotExist, got %v", err)
	}
}

func TestLoadFSDecodeErrorCarriesPath(t *testing.T) {
	m := fsutil.NewMemoryFileSystem()
	if err := m.WriteFile("/spaces.json", []byte(`[`), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	_, err := LoadFS(m, "/spaces.json")
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if ce.Path != "/spaces.json" {
		t.Errorf("Path = %q", ce.Path)
	}
	if !strings.Contains(err.Error(), "space definitions /spaces.json") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestSaveLoadOS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spaces.json")
	polys := []Polygon{
		{{1, 2}, {3, 4}, {5, 6}, {7, 8}},
		{{10, 10}, {20, 10}, {20, 20}, {10, 20}},
	}

	if err := Save(fsutil.OSFileSystem{}, path, polys); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(polys, Polygons(got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeShape(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, []Polygon{{{1, 2}, {3, 4}, {5, 6}, {7, 8}}}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	compact := strings.Join(strings.Fields(buf.String()), "")
	if compact != `[[[1,2],[3,4],[5,6],[7,8]]]` {
		t.Errorf("Encode = %s", compact)
	}
}
