package ollama

import (
	"bytes"
	"encoding/json"
)

// Event is one decoded line of a streaming response. A line can carry
// both trailing partial text and the done flag; consumers must handle the
// text before treating the line as terminal.
type Event struct {
	// Text is the partial content, empty when the line carried none.
	Text string

	// Done marks the stream's completion flag.
	Done bool

	// Skip marks an empty or malformed line that must not abort the
	// stream and carries nothing.
	Skip bool
}

// DecodeLine parses one raw line into an Event. It never fails: anything
// unparseable becomes a Skip event.
func DecodeLine(line []byte) Event {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Event{Skip: true}
	}

	var ck chunk
	if err := json.Unmarshal(line, &ck); err != nil {
		return Event{Skip: true}
	}

	return Event{Text: ck.text(), Done: ck.Done}
}
