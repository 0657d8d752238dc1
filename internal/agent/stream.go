package agent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// streamEvent is one line of Claude's stream-json output. Only the fields
// the text renderer needs are mapped; everything else is ignored.
type streamEvent struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype,omitempty"`
	Message *streamMessage  `json:"message,omitempty"`
	Delta   *streamDelta    `json:"delta,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *streamError    `json:"error,omitempty"`
}

type streamMessage struct {
	Content []streamBlock `json:"content,omitempty"`
}

type streamBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

type streamDelta struct {
	Text string `json:"text,omitempty"`
}

type streamError struct {
	Message string `json:"message,omitempty"`
}

// maxStreamLine bounds one JSON line; tool results can embed whole files.
const maxStreamLine = 10 * 1024 * 1024

// RenderStream converts Claude CLI stream-json output into plain text on
// w. Text deltas and assistant text blocks stream through as-is, tool
// invocations become one-line markers, and error events surface on the
// output rather than vanishing. Malformed lines are skipped; partial
// output at process death should not lose the text that did arrive.
func RenderStream(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLine)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev streamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			continue
		}
		if err := renderEvent(&ev, w); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func renderEvent(ev *streamEvent, w io.Writer) error {
	switch ev.Type {
	case "content_block_delta":
		if ev.Delta != nil && ev.Delta.Text != "" {
			_, err := io.WriteString(w, ev.Delta.Text)
			return err
		}
	case "assistant":
		if ev.Message == nil {
			return nil
		}
		for _, block := range ev.Message.Content {
			switch block.Type {
			case "text":
				if block.Text != "" {
					if _, err := io.WriteString(w, block.Text+"\n"); err != nil {
						return err
					}
				}
			case "tool_use":
				if _, err := fmt.Fprintf(w, "[tool: %s]\n", block.Name); err != nil {
					return err
				}
			}
		}
	case "error":
		msg := "unknown error"
		if ev.Error != nil && ev.Error.Message != "" {
			msg = ev.Error.Message
		}
		_, err := fmt.Fprintf(w, "[stream error: %s]\n", msg)
		return err
	}
	return nil
}
