package pipeline

// Mode selects how a two-value sample is reduced to one raw scalar.
type Mode int

const (
	// ModeTwoChannel subtracts the secondary (reference) sensor from the
	// primary, yielding the vertical gradient. Survey mode "A".
	ModeTwoChannel Mode = iota

	// ModeSingleChannel uses the primary sensor alone. Survey mode "B".
	ModeSingleChannel
)

// ParseMode maps the persisted mode tag to a Mode. Unknown tags fall
// back to two-channel operation.
func ParseMode(tag string) Mode {
	if tag == "B" {
		return ModeSingleChannel
	}
	return ModeTwoChannel
}

// Tag returns the persisted form of the mode ("A" or "B").
func (m Mode) Tag() string {
	if m == ModeSingleChannel {
		return "B"
	}
	return "A"
}

func (m Mode) String() string {
	if m == ModeSingleChannel {
		return "single-channel"
	}
	return "two-channel"
}

// Reduce collapses a sample to the raw gradient scalar. With drift
// cancellation enabled the captured zero offset is subtracted so slow
// sensor drift does not walk the baseline.
func Reduce(s Sample, mode Mode, zeroOffset float64, driftCancel bool) float64 {
	raw := s.Primary
	if mode == ModeTwoChannel {
		raw -= s.Secondary
	}
	if driftCancel {
		raw -= zeroOffset
	}
	return raw
}
