package serialmux

import "strings"

const (
	EventTypeSample  = "sample"
	EventTypeConfig  = "config"
	EventTypeUnknown = "unknown"
)

// ClassifyPayload inspects a payload string and returns a simple event
// type token. Config responses are JSON objects; everything carrying a
// digit is treated as a sample line and left to the parser to accept or
// discard.
func ClassifyPayload(payload string) string {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{") {
		return EventTypeConfig
	}
	if strings.ContainsAny(trimmed, "0123456789") {
		return EventTypeSample
	}
	return EventTypeUnknown
}
