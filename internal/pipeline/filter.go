package pipeline

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Filter names as persisted in settings and grid metadata.
const (
	FilterNone          = "none"
	FilterMovingAverage = "moving_average"
	FilterMedian        = "median"
	FilterIIR           = "iir"
	FilterKalman        = "kalman"
)

// Filter is one stateful smoothing variant. Exactly one filter is
// active per session; replacing it discards the old variant's memory.
// Apply mutates the filter's recurrence memory and must only be called
// from the session's processing context.
type Filter interface {
	// Apply folds one raw value into the filter and returns the
	// smoothed output.
	Apply(raw float64) float64

	// Name returns the persisted filter name.
	Name() string
}

// FilterParams carries the tunable parameters for every variant so a
// fresh filter can be built from settings in one place.
type FilterParams struct {
	MovingAverageWindow int     `json:"moving_avg_window"`
	MedianWindow        int     `json:"median_window"`
	IIRAlpha            float64 `json:"iir_alpha"`
	KalmanProcessNoise  float64 `json:"kalman_process_noise"`
	KalmanMeasureNoise  float64 `json:"kalman_measurement_noise"`
}

// NewFilter builds a fresh filter of the named kind. Unknown names get
// the identity filter so a corrupt setting never stalls the stream.
func NewFilter(name string, p FilterParams) Filter {
	switch name {
	case FilterMovingAverage:
		return NewMovingAverage(p.MovingAverageWindow)
	case FilterMedian:
		return NewMedianFilter(p.MedianWindow)
	case FilterIIR:
		return NewIIRFilter(p.IIRAlpha)
	case FilterKalman:
		return NewKalmanFilter(p.KalmanProcessNoise, p.KalmanMeasureNoise)
	default:
		return IdentityFilter{}
	}
}

// IdentityFilter passes values through unchanged.
type IdentityFilter struct{}

func (IdentityFilter) Apply(raw float64) float64 { return raw }
func (IdentityFilter) Name() string              { return FilterNone }

// MovingAverage keeps the last window raw values and outputs their
// mean.
type MovingAverage struct {
	window int
	buf    []float64
}

func NewMovingAverage(window int) *MovingAverage {
	if window < 1 {
		window = 1
	}
	return &MovingAverage{window: window}
}

// SetWindow changes the eviction threshold without clearing history.
// A shrink takes effect through normal eviction on later samples.
func (m *MovingAverage) SetWindow(window int) {
	if window >= 1 {
		m.window = window
	}
}

func (m *MovingAverage) Apply(raw float64) float64 {
	m.buf = append(m.buf, raw)
	for len(m.buf) > m.window {
		m.buf = m.buf[1:]
	}
	return stat.Mean(m.buf, nil)
}

func (m *MovingAverage) Name() string { return FilterMovingAverage }

// MedianFilter keeps the last window raw values and outputs the
// element at index len/2 of the sorted buffer. The index is the fixed
// tie-break for even-length buffers and must not change: recorded
// grids are only comparable across sessions if the median is
// bit-for-bit reproducible.
type MedianFilter struct {
	window int
	buf    []float64
}

func NewMedianFilter(window int) *MedianFilter {
	if window < 1 {
		window = 1
	}
	return &MedianFilter{window: window}
}

// SetWindow changes the eviction threshold without clearing history.
func (m *MedianFilter) SetWindow(window int) {
	if window >= 1 {
		m.window = window
	}
}

func (m *MedianFilter) Apply(raw float64) float64 {
	m.buf = append(m.buf, raw)
	for len(m.buf) > m.window {
		m.buf = m.buf[1:]
	}
	sorted := make([]float64, len(m.buf))
	copy(sorted, m.buf)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2]
}

func (m *MedianFilter) Name() string { return FilterMedian }

// IIRFilter is a single-pole low-pass recurrence. The first sample
// after construction seeds the memory directly, avoiding the startup
// transient a zero-seeded recurrence would show.
type IIRFilter struct {
	alpha  float64
	seeded bool
	y      float64
}

func NewIIRFilter(alpha float64) *IIRFilter {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.25
	}
	return &IIRFilter{alpha: alpha}
}

// SetAlpha updates the smoothing coefficient; existing memory is kept.
func (f *IIRFilter) SetAlpha(alpha float64) {
	if alpha > 0 && alpha <= 1 {
		f.alpha = alpha
	}
}

func (f *IIRFilter) Apply(raw float64) float64 {
	if !f.seeded {
		f.y = raw
		f.seeded = true
		return f.y
	}
	f.y += f.alpha * (raw - f.y)
	return f.y
}

func (f *IIRFilter) Name() string { return FilterIIR }

// KalmanFilter is a scalar predict/update filter. q is the process
// noise covariance, r the measurement noise covariance.
type KalmanFilter struct {
	q float64
	r float64
	x float64 // current estimate
	p float64 // estimation error covariance
}

func NewKalmanFilter(q, r float64) *KalmanFilter {
	return &KalmanFilter{q: q, r: r, p: 1}
}

// SetNoise updates the noise covariances; the estimate and error
// covariance are kept.
func (f *KalmanFilter) SetNoise(q, r float64) {
	f.q = q
	f.r = r
}

func (f *KalmanFilter) Apply(raw float64) float64 {
	predP := f.p + f.q
	k := predP / (predP + f.r)
	f.x += k * (raw - f.x)
	f.p = (1 - k) * predP
	return f.x
}

func (f *KalmanFilter) Name() string { return FilterKalman }
