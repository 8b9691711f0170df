package pipeline

// Alert classifies one filtered value against the configured
// thresholds.
type Alert int

const (
	AlertNone Alert = iota
	AlertHigh
	AlertLow
)

func (a Alert) String() string {
	switch a {
	case AlertHigh:
		return "high"
	case AlertLow:
		return "low"
	default:
		return "none"
	}
}

// ParseAlert is the inverse of String. Unknown names map to AlertNone.
func ParseAlert(s string) Alert {
	switch s {
	case "high":
		return AlertHigh
	case "low":
		return AlertLow
	default:
		return AlertNone
	}
}

// EvaluateAlert compares a filtered value against the positive and
// negative thresholds. The comparison is stateless: a value that stays
// beyond a threshold re-triggers on every sample. Debounce, if wanted,
// belongs to the haptic/audio collaborator, not here.
func EvaluateAlert(filtered, posThreshold, negThreshold float64) Alert {
	switch {
	case filtered > posThreshold:
		return AlertHigh
	case filtered < negThreshold:
		return AlertLow
	default:
		return AlertNone
	}
}
