package pipeline

import (
	"math"
	"testing"
)

func applyAll(f Filter, inputs []float64) []float64 {
	out := make([]float64, len(inputs))
	for i, v := range inputs {
		out[i] = f.Apply(v)
	}
	return out
}

func almostEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func TestIdentityFilter(t *testing.T) {
	got := applyAll(IdentityFilter{}, []float64{3, -1, 0.5})
	if !almostEqual(got, []float64{3, -1, 0.5}) {
		t.Errorf("identity changed values: %v", got)
	}
}

func TestMovingAverage(t *testing.T) {
	got := applyAll(NewMovingAverage(3), []float64{1, 2, 3, 4})
	want := []float64{1, 1.5, 2, 3}
	if !almostEqual(got, want) {
		t.Errorf("moving average = %v, want %v", got, want)
	}
}

func TestMovingAverage_WindowShrinkKeepsHistory(t *testing.T) {
	f := NewMovingAverage(4)
	applyAll(f, []float64{1, 2, 3, 4})

	// Shrinking the window does not retroactively trim stored history;
	// the new threshold applies through eviction on the next sample.
	f.SetWindow(2)
	got := f.Apply(5)
	if math.Abs(got-4.5) > 1e-9 {
		t.Errorf("after shrink, Apply(5) = %v, want 4.5 (mean of last 2)", got)
	}
}

func TestMedianFilter_TieBreak(t *testing.T) {
	// The median is the sorted buffer's element at index len/2. For
	// even lengths that index is fixed and must never change.
	got := applyAll(NewMedianFilter(2), []float64{4, 2, 8, 6})
	want := []float64{4, 4, 8, 8}
	if !almostEqual(got, want) {
		t.Errorf("median = %v, want %v", got, want)
	}
}

func TestMedianFilter_Window3(t *testing.T) {
	got := applyAll(NewMedianFilter(3), []float64{5, 1, 3, 9, 2})
	// buffers: [5] [5,1] [5,1,3] [1,3,9] [3,9,2]
	want := []float64{5, 5, 3, 3, 3}
	if !almostEqual(got, want) {
		t.Errorf("median = %v, want %v", got, want)
	}
}

func TestMedianFilter_Deterministic(t *testing.T) {
	inputs := []float64{0.3, -2, 7, 7, 0.3, -2, 5.5, 1}
	a := applyAll(NewMedianFilter(4), inputs)
	b := applyAll(NewMedianFilter(4), inputs)
	if !almostEqual(a, b) {
		t.Errorf("median not deterministic: %v vs %v", a, b)
	}
}

func TestIIRFilter_SeededByFirstSample(t *testing.T) {
	got := applyAll(NewIIRFilter(0.5), []float64{10, 20, 20})
	want := []float64{10, 15, 17.5}
	if !almostEqual(got, want) {
		t.Errorf("iir = %v, want %v", got, want)
	}
}

func TestIIRFilter_AlphaChangeKeepsMemory(t *testing.T) {
	f := NewIIRFilter(0.5)
	f.Apply(10)
	f.SetAlpha(1.0)
	if got := f.Apply(20); math.Abs(got-20) > 1e-9 {
		t.Errorf("alpha=1 should track input from existing memory, got %v", got)
	}
}

func TestKalmanFilter(t *testing.T) {
	// q=0, r=1 gives closed-form steps: p starts at 1.
	f := NewKalmanFilter(0, 1)

	// predP=1, k=0.5, x=0.5, p=0.5
	if got := f.Apply(1); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("first update = %v, want 0.5", got)
	}
	// predP=0.5, k=1/3, x=2/3, p=1/3
	if got := f.Apply(1); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("second update = %v, want 2/3", got)
	}
}

func TestKalmanFilter_ConvergesToConstantInput(t *testing.T) {
	f := NewKalmanFilter(0.05, 2.0)
	var got float64
	for i := 0; i < 200; i++ {
		got = f.Apply(12.0)
	}
	if math.Abs(got-12.0) > 0.1 {
		t.Errorf("kalman did not converge: %v", got)
	}
}

func TestNewFilter_UnknownNameFallsBackToIdentity(t *testing.T) {
	f := NewFilter("wiener", DefaultFilterParams())
	if f.Name() != FilterNone {
		t.Errorf("unknown filter name gave %q, want %q", f.Name(), FilterNone)
	}
}

func TestNewFilter_FreshStatePerConstruction(t *testing.T) {
	p := DefaultFilterParams()
	a := NewFilter(FilterIIR, p)
	a.Apply(100)

	b := NewFilter(FilterIIR, p)
	if got := b.Apply(10); math.Abs(got-10) > 1e-9 {
		t.Errorf("fresh iir should seed from its own first sample, got %v", got)
	}
}
