package serialmux

import "testing"

func TestClassifyPayload(t *testing.T) {
	tests := []struct {
		payload string
		want    string
	}{
		{"12.5,-3.2", EventTypeSample},
		{"ch1:4.0,ch2:-1.0", EventTypeSample},
		{"7.25", EventTypeSample},
		{`{"rate":10,"channels":2}`, EventTypeConfig},
		{"  {\"ok\":true}", EventTypeConfig},
		{"ready", EventTypeUnknown},
		{"", EventTypeUnknown},
	}
	for _, tt := range tests {
		if got := ClassifyPayload(tt.payload); got != tt.want {
			t.Errorf("ClassifyPayload(%q) = %q, want %q", tt.payload, got, tt.want)
		}
	}
}
