package pipeline

import (
	"strconv"
	"strings"
)

// Sample is one two-channel gradiometer reading parsed from a device
// line. Secondary is 0 when the device reports a single channel.
type Sample struct {
	Primary   float64
	Secondary float64
}

// cleanLine strips ASCII control characters (including CR left over
// from CRLF terminators) and surrounding whitespace.
func cleanLine(line string) string {
	line = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, line)
	return strings.TrimSpace(line)
}

// numericToken extracts a float from a noisy token by discarding every
// character outside [0-9.-] before parsing. Unparsable or empty tokens
// yield 0 rather than an error: serial noise regularly mangles a single
// field and the rest of the sample is still usable.
func numericToken(tok string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, tok)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return v
}

// ParseSample interprets one framed line as a Sample. Supported
// encodings, in order:
//
//	key:value pairs  "ch1:4.0,ch2:-1.0"  (keys containing 1 or 2)
//	comma separated  "12.5,-3.2"
//	bare number      "12.5"
//
// The key:value form is recognised first because it also contains
// commas. Lines that match no encoding are discarded with ok=false;
// the stream continues at the next line.
func ParseSample(line string) (Sample, bool) {
	line = cleanLine(line)
	if line == "" {
		return Sample{}, false
	}

	if strings.Contains(line, ":") {
		return parseKeyValue(line)
	}

	if strings.Contains(line, ",") {
		tokens := strings.Split(line, ",")
		s := Sample{Primary: numericToken(tokens[0])}
		if len(tokens) > 1 {
			s.Secondary = numericToken(tokens[1])
		}
		return s, true
	}

	// Bare number. Unlike field tokens inside a structured line, a bare
	// line with no digits at all is junk and is dropped entirely.
	if !strings.ContainsAny(line, "0123456789") {
		return Sample{}, false
	}
	return Sample{Primary: numericToken(line)}, true
}

// parseKeyValue handles lines of comma-separated key:value tokens. A
// key containing the character 1 assigns the primary channel, a key
// containing 2 the secondary; anything else is ignored. A line in
// which no key matched carries no reading and is discarded.
func parseKeyValue(line string) (Sample, bool) {
	var s Sample
	matched := false
	for _, tok := range strings.Split(line, ",") {
		key, value, ok := strings.Cut(tok, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(key)
		switch {
		case strings.Contains(key, "1"):
			s.Primary = numericToken(value)
			matched = true
		case strings.Contains(key, "2"):
			s.Secondary = numericToken(value)
			matched = true
		}
	}
	return s, matched
}
