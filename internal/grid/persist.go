package grid

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/magscan/internal/fsutil"
)

// gridMeta is the meta block of a persisted grid file. Every field
// except the dimensions is optional on load: files written by older
// builds omit fields, and load falls back to the values currently in
// memory for anything missing.
type gridMeta struct {
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	SpacingCM *float64 `json:"spacing_cm,omitempty"`
	Mode      *string  `json:"mode,omitempty"`
	IIRAlpha  *float64 `json:"iir_alpha,omitempty"`
	Filter    *string  `json:"filter,omitempty"`
	Timestamp *string  `json:"timestamp,omitempty"`
}

// gridFile is the persisted grid document: a meta object plus the flat
// row-major values array.
type gridFile struct {
	Meta   gridMeta  `json:"meta"`
	Values []float64 `json:"values"`
}

// Save writes the grid to path as JSON.
func Save(fs fsutil.FileSystem, path string, g *ScanGrid) error {
	if g == nil {
		return ErrNoGrid
	}
	ts := g.CreatedAt.Format(time.RFC3339)
	doc := gridFile{
		Meta: gridMeta{
			Width:     g.Width,
			Height:    g.Height,
			SpacingCM: &g.SpacingCM,
			Mode:      &g.Mode,
			IIRAlpha:  &g.IIRAlpha,
			Filter:    &g.Filter,
			Timestamp: &ts,
		},
		Values: g.Values,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode grid: %w", err)
	}
	if err := fs.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write grid file: %w", err)
	}
	return nil
}

// Load reads a grid file and returns a fresh grid. Missing optional
// meta fields fall back to the corresponding fields of current (which
// may be nil). Nothing is mutated on failure; the caller swaps in the
// returned grid only on success. The loaded grid is complete: its
// cursor sits past the last row so recording requires starting a new
// grid.
func Load(fs fsutil.FileSystem, path string, current *ScanGrid) (*ScanGrid, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid file: %w", err)
	}

	var doc gridFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse grid file: %w", err)
	}

	width, height := doc.Meta.Width, doc.Meta.Height
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("grid file has invalid dimensions %dx%d", width, height)
	}
	if len(doc.Values) != width*height {
		return nil, fmt.Errorf("grid file has %d values, want %d", len(doc.Values), width*height)
	}

	g := New(width, height)
	g.Values = doc.Values
	g.CursorY = height // loaded grids are not recordable

	if doc.Meta.SpacingCM != nil {
		g.SpacingCM = *doc.Meta.SpacingCM
	} else if current != nil {
		g.SpacingCM = current.SpacingCM
	}
	if doc.Meta.Mode != nil {
		g.Mode = *doc.Meta.Mode
	} else if current != nil {
		g.Mode = current.Mode
	}
	if doc.Meta.IIRAlpha != nil {
		g.IIRAlpha = *doc.Meta.IIRAlpha
	} else if current != nil {
		g.IIRAlpha = current.IIRAlpha
	}
	if doc.Meta.Filter != nil {
		g.Filter = *doc.Meta.Filter
	} else if current != nil {
		g.Filter = current.Filter
	}
	if doc.Meta.Timestamp != nil {
		if t, err := time.Parse(time.RFC3339, *doc.Meta.Timestamp); err == nil {
			g.CreatedAt = t
		}
	} else if current != nil {
		g.CreatedAt = current.CreatedAt
	}

	return g, nil
}

// SaveFile persists the recorder's current grid under its lock.
func (r *Recorder) SaveFile(fs fsutil.FileSystem, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Save(fs, path, r.grid)
}

// LoadFile loads a grid file and replaces the recorder's current grid
// on success.
func (r *Recorder) LoadFile(fs fsutil.FileSystem, path string) (*ScanGrid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, err := Load(fs, path, r.grid)
	if err != nil {
		return nil, err
	}
	r.grid = g
	r.count = 0
	return g, nil
}
