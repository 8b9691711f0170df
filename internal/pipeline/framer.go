package pipeline

import (
	"bytes"
	"strings"
)

// LineFramer reassembles arbitrary byte chunks from the serial transport
// into newline-terminated lines. Chunk boundaries carry no meaning: a
// line may arrive split across many chunks, or many lines may arrive in
// one chunk. The framer keeps the unterminated tail between calls and
// emits only complete lines, in order.
type LineFramer struct {
	tail []byte
}

// Feed appends a chunk to the framer and returns any complete lines it
// now holds. The tail is kept as raw bytes so a multi-byte rune split
// across chunks reassembles before decoding; invalid UTF-8 in a
// completed line is dropped rather than surfaced, since the serial
// bridge occasionally corrupts bytes and a bad character must not stall
// the stream. Returns nil when no terminator has been seen yet.
func (f *LineFramer) Feed(chunk []byte) []string {
	f.tail = append(f.tail, chunk...)
	if !bytes.ContainsRune(f.tail, '\n') {
		return nil
	}
	segments := bytes.Split(f.tail, []byte{'\n'})
	lines := make([]string, 0, len(segments)-1)
	for _, segment := range segments[:len(segments)-1] {
		line := strings.TrimSuffix(string(segment), "\r")
		lines = append(lines, strings.ToValidUTF8(line, ""))
	}
	// The final segment is the new tail, even when it is empty.
	f.tail = append(f.tail[:0], segments[len(segments)-1]...)
	return lines
}

// Pending returns the buffered unterminated tail.
func (f *LineFramer) Pending() string {
	return string(f.tail)
}

// Reset discards any buffered partial line.
func (f *LineFramer) Reset() {
	f.tail = f.tail[:0]
}
