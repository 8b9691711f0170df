package grid

import (
	"fmt"
	"sync"

	"github.com/banshee-data/magscan/internal/pipeline"
)

// DefaultAutoStride records one cell for every 6 incoming filtered
// samples, so walking a survey line does not require one sample per
// step.
const DefaultAutoStride = 6

// DefaultSpacingCM is the assumed cell spacing when a grid is started
// without one.
const DefaultSpacingCM = 50.0

// ErrNoGrid is returned by recording operations before a grid has been
// started.
var ErrNoGrid = fmt.Errorf("no scan grid started")

// Recorder owns the current scan grid and implements pipeline.Sink for
// stream-driven auto recording. Manual recording and grid replacement
// go through the same lock, so API calls and the ingest loop never
// observe a half-updated grid.
type Recorder struct {
	mu        sync.Mutex
	grid      *ScanGrid
	stride    int
	spacingCM float64
	auto      bool
	count     int
}

// NewRecorder creates a recorder with the given auto-record stride.
// Strides below 1 fall back to DefaultAutoStride.
func NewRecorder(stride int) *Recorder {
	if stride < 1 {
		stride = DefaultAutoStride
	}
	return &Recorder{stride: stride, spacingCM: DefaultSpacingCM}
}

// Start replaces the current grid. The auto-record sample counter
// restarts with the new grid.
func (r *Recorder) Start(g *ScanGrid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grid = g
	r.count = 0
}

// Grid returns the current grid, or nil before Start.
func (r *Recorder) Grid() *ScanGrid {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grid
}

// SetAuto toggles stream-driven recording.
func (r *Recorder) SetAuto(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auto = on
	r.count = 0
}

// Auto reports whether stream-driven recording is active.
func (r *Recorder) Auto() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.auto
}

// SetStride updates the auto-record throttle.
func (r *Recorder) SetStride(stride int) {
	if stride < 1 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stride = stride
}

// SetSpacing updates the spacing stamped onto grids started without
// an explicit one.
func (r *Recorder) SetSpacing(cm float64) {
	if cm <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spacingCM = cm
}

// Spacing returns the default cell spacing in centimetres.
func (r *Recorder) Spacing() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spacingCM
}

// Manual records one value at the cursor. Recording past the last row
// is a silent no-op, matching RecordManual.
func (r *Recorder) Manual(value float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.grid == nil {
		return ErrNoGrid
	}
	r.grid.RecordManual(value)
	return nil
}

// Record implements pipeline.Sink. Every stride-th filtered sample is
// recorded while auto mode is on; all other samples are ignored.
func (r *Recorder) Record(rd pipeline.Reading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.auto || r.grid == nil || r.grid.Complete() {
		return nil
	}
	r.count++
	if r.count%r.stride != 0 {
		return nil
	}
	r.grid.RecordManual(rd.Filtered)
	return nil
}
