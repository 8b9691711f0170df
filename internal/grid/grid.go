// Package grid implements scan grid recording for magnetic surveys: a
// fixed-size row-major grid of filtered gradient values filled cell by
// cell as the operator walks the survey lines.
package grid

import (
	"time"

	"github.com/google/uuid"
)

// Point is one recorded cell in recording order.
type Point struct {
	X     int     `json:"x"`
	Y     int     `json:"y"`
	Value float64 `json:"value"`
}

// ScanGrid is a width×height row-major grid of filtered values plus
// the recording cursor and the ordered list of recorded points. The
// cursor stays inside the grid while recording is possible; once it
// advances past the last row the grid is complete and further records
// are no-ops.
type ScanGrid struct {
	ID        string    `json:"id"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	SpacingCM float64   `json:"spacing_cm"`
	Mode      string    `json:"mode"`
	Filter    string    `json:"filter"`
	IIRAlpha  float64   `json:"iir_alpha"`
	CreatedAt time.Time `json:"created_at"`

	Values  []float64 `json:"values"`
	CursorX int       `json:"cursor_x"`
	CursorY int       `json:"cursor_y"`
	Points  []Point   `json:"points"`
}

// New creates an all-zero grid with the cursor at the origin.
// Dimensions below 1 are clamped to 1.
func New(width, height int) *ScanGrid {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &ScanGrid{
		ID:     uuid.NewString(),
		Width:  width,
		Height: height,
		Values: make([]float64, width*height),
	}
}

// Complete reports whether the cursor has advanced past the last row.
func (g *ScanGrid) Complete() bool {
	return g.CursorY >= g.Height
}

// RecordManual writes value at the cursor cell, appends a point record
// and advances the cursor in row-major order. Returns false without
// mutating anything when the grid is already complete.
func (g *ScanGrid) RecordManual(value float64) bool {
	if g.Complete() {
		return false
	}
	g.Values[g.CursorY*g.Width+g.CursorX] = value
	g.Points = append(g.Points, Point{X: g.CursorX, Y: g.CursorY, Value: value})
	g.CursorX++
	if g.CursorX == g.Width {
		g.CursorX = 0
		g.CursorY++
	}
	return true
}

// At returns the value at cell (x, y). Out-of-range coordinates return 0.
func (g *ScanGrid) At(x, y int) float64 {
	if x < 0 || x >= g.Width || y < 0 || y >= g.Height {
		return 0
	}
	return g.Values[y*g.Width+x]
}
