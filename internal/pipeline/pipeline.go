// Package pipeline implements the streaming signal path for the
// gradiometer: byte chunks are framed into lines, parsed into samples,
// reduced to a raw gradient scalar and smoothed by the active filter.
// All session state is owned by one Session and mutated strictly in
// arrival order.
package pipeline

import (
	"log"
	"sync"
	"time"

	"github.com/banshee-data/magscan/internal/timeutil"
)

// Reading is one fully conditioned sample as it leaves the pipeline.
type Reading struct {
	Time     time.Time `json:"time"`
	S1       float64   `json:"s1"`
	S2       float64   `json:"s2"`
	Raw      float64   `json:"raw"`
	Filtered float64   `json:"filtered"`
	Alert    Alert     `json:"alert"`
}

// Sink receives each conditioned reading. A sink error is logged and
// the stream continues; sinks must never stall ingestion.
type Sink interface {
	Record(r Reading) error
}

// DefaultFilterParams returns the factory filter tuning.
func DefaultFilterParams() FilterParams {
	return FilterParams{
		MovingAverageWindow: 8,
		MedianWindow:        5,
		IIRAlpha:            0.25,
		KalmanProcessNoise:  0.05,
		KalmanMeasureNoise:  2.0,
	}
}

// Session owns all mutable pipeline state for one device connection:
// the line framer, reduction mode, zero offset, the active filter and
// the alert thresholds. Every public method takes the session lock, so
// processing one line (reduce, filter, record, alert) is atomic with
// respect to concurrent configuration changes.
//
// Transport disconnects do not reset a session; filtering resumes with
// full continuity when chunks start arriving again.
type Session struct {
	mu     sync.Mutex
	clock  timeutil.Clock
	framer LineFramer

	mode        Mode
	zeroOffset  float64
	driftCancel bool

	filter Filter
	params FilterParams

	posThreshold float64
	negThreshold float64

	sinks []Sink

	last         Reading
	lastGradient float64
	haveReading  bool
}

// NewSession builds a session with the identity filter and factory
// thresholds. A nil clock falls back to the real one.
func NewSession(clock timeutil.Clock) *Session {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Session{
		clock:        clock,
		filter:       IdentityFilter{},
		params:       DefaultFilterParams(),
		posThreshold: 50,
		negThreshold: -50,
	}
}

// Feed ingests one transport chunk. Complete lines are processed in
// order before Feed returns; a trailing partial line is buffered for
// the next call. Malformed lines are dropped silently.
func (s *Session) Feed(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.framer.Feed(chunk) {
		s.processLine(line)
	}
}

// FeedLine bypasses the framer for callers that already hold whole
// lines, such as the serial mux subscriber loop.
func (s *Session) FeedLine(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processLine(line)
}

func (s *Session) processLine(line string) {
	sample, ok := ParseSample(line)
	if !ok {
		return
	}

	// The zero offset captures the unadjusted gradient, so compute it
	// separately from the drift-cancelled raw value.
	gradient := Reduce(sample, s.mode, 0, false)
	raw := gradient
	if s.driftCancel {
		raw -= s.zeroOffset
	}
	filtered := s.filter.Apply(raw)

	r := Reading{
		Time:     s.clock.Now(),
		S1:       sample.Primary,
		S2:       sample.Secondary,
		Raw:      raw,
		Filtered: filtered,
		Alert:    EvaluateAlert(filtered, s.posThreshold, s.negThreshold),
	}
	s.last = r
	s.lastGradient = gradient
	s.haveReading = true

	for _, sink := range s.sinks {
		if err := sink.Record(r); err != nil {
			log.Printf("pipeline: sink error: %v", err)
		}
	}
}

// AddSink registers a reading sink. Sinks are invoked in registration
// order within the per-line critical section.
func (s *Session) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// SetMode switches between two-channel and single-channel reduction.
func (s *Session) SetMode(m Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = m
}

// Mode returns the active reduction mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SelectFilter replaces the active filter with a fresh variant of the
// named kind. The previous variant's memory is discarded entirely; no
// state transfers between filter types.
func (s *Session) SelectFilter(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = NewFilter(name, s.params)
}

// ResetFilter rebuilds the active filter kind with empty memory. Used
// on grid restart and log restart.
func (s *Session) ResetFilter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = NewFilter(s.filter.Name(), s.params)
}

// UpdateFilterParams applies new tuning to the active filter without
// clearing its memory. The new values also seed any filter selected
// later.
func (s *Session) UpdateFilterParams(p FilterParams) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
	switch f := s.filter.(type) {
	case *MovingAverage:
		f.SetWindow(p.MovingAverageWindow)
	case *MedianFilter:
		f.SetWindow(p.MedianWindow)
	case *IIRFilter:
		f.SetAlpha(p.IIRAlpha)
	case *KalmanFilter:
		f.SetNoise(p.KalmanProcessNoise, p.KalmanMeasureNoise)
	}
}

// FilterName returns the active filter's persisted name.
func (s *Session) FilterName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter.Name()
}

// FilterParams returns the current filter tuning.
func (s *Session) FilterParams() FilterParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

// SetThresholds updates the alert bounds.
func (s *Session) SetThresholds(pos, neg float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posThreshold = pos
	s.negThreshold = neg
}

// Thresholds returns the positive and negative alert bounds.
func (s *Session) Thresholds() (pos, neg float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posThreshold, s.negThreshold
}

// SetDriftCancel toggles subtraction of the captured zero offset.
func (s *Session) SetDriftCancel(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.driftCancel = on
}

// DriftCancel reports whether zero offset subtraction is active.
func (s *Session) DriftCancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driftCancel
}

// CaptureZero stores the most recent unadjusted gradient as the zero
// offset and returns it. Capturing before any sample has arrived sets
// the offset to 0.
func (s *Session) CaptureZero() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zeroOffset = s.lastGradient
	return s.zeroOffset
}

// SetZeroOffset restores a persisted zero offset.
func (s *Session) SetZeroOffset(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zeroOffset = v
}

// ZeroOffset returns the current zero offset.
func (s *Session) ZeroOffset() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zeroOffset
}

// LastReading returns the most recent conditioned reading, if any.
func (s *Session) LastReading() (Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.haveReading
}
