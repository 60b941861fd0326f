package wire

import (
	"encoding/json"
	"strings"
)

// doneSentinel terminates OpenAI-style SSE streams.
const doneSentinel = "[DONE]"

// SSEFrames splits a raw event-stream body on blank-line boundaries and
// returns the joined data payload of each block. Non-data lines are
// discarded, multi-line data blocks are rejoined with newlines, and blocks
// carrying the [DONE] sentinel are dropped.
func SSEFrames(raw string) []string {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	var frames []string
	for _, block := range strings.Split(normalized, "\n\n") {
		var dataLines []string
		for _, line := range strings.Split(block, "\n") {
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			dataLines = append(dataLines, strings.TrimSpace(line[len("data:"):]))
		}
		if len(dataLines) == 0 {
			continue
		}
		data := strings.Join(dataLines, "\n")
		if data == "" || data == doneSentinel {
			continue
		}
		frames = append(frames, data)
	}
	return frames
}

// SSEEvents decodes each SSE data frame as JSON, skipping frames that do
// not parse.
func SSEEvents(raw string) []any {
	var events []any
	for _, frame := range SSEFrames(raw) {
		var v any
		if err := json.Unmarshal([]byte(frame), &v); err == nil {
			events = append(events, v)
		}
	}
	return events
}
