package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// openAIStreamChunk is the subset of an OpenAI streaming chunk this
// converter inspects.
type openAIStreamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// SSEConverter is a line-oriented, stateful transformer from an OpenAI
// SSE stream into an Anthropic SSE stream (spec.md §4.3). It holds back
// only a trailing partial line, until its newline arrives; every
// complete line in a chunk is converted and returned by the same Feed
// call. It never parses the stream into a structured event model beyond
// what's needed line-by-line (spec.md §9).
type SSEConverter struct {
	carry        strings.Builder
	started      bool
	messageID    string
	model        string
	finishedSeen bool
}

// NewSSEConverter builds a converter for one client stream.
func NewSSEConverter() *SSEConverter {
	return &SSEConverter{messageID: "msg_" + uuid.NewString()}
}

// Feed appends chunk to the internal carry-over buffer, extracts
// complete lines, and returns the Anthropic-formatted SSE bytes those
// lines produce (possibly empty). Any unparseable or non-"data:" line is
// skipped silently, per spec.md §4.3.
func (s *SSEConverter) Feed(chunk []byte) []byte {
	s.carry.Write(chunk)
	buffered := s.carry.String()

	var out strings.Builder
	for {
		idx := strings.IndexByte(buffered, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(buffered[:idx], "\r")
		buffered = buffered[idx+1:]
		s.handleLine(line, &out)
	}

	s.carry.Reset()
	s.carry.WriteString(buffered)
	return []byte(out.String())
}

func (s *SSEConverter) handleLine(line string, out *strings.Builder) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if !strings.HasPrefix(line, "data:") {
		return
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

	if payload == "[DONE]" {
		writeEvent(out, "message_stop", map[string]any{"type": "message_stop"})
		return
	}

	var chunk openAIStreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return
	}

	if !s.started {
		s.started = true
		s.model = chunk.Model
		writeEvent(out, "message_start", map[string]any{
			"type": "message_start",
			"message": map[string]any{
				"id":      s.messageID,
				"type":    "message",
				"role":    "assistant",
				"model":   s.model,
				"content": []any{},
				"usage":   map[string]any{"input_tokens": 0, "output_tokens": 0},
			},
		})
		writeEvent(out, "content_block_start", map[string]any{
			"type":          "content_block_start",
			"index":         0,
			"content_block": map[string]any{"type": "text", "text": ""},
		})
	}

	if len(chunk.Choices) == 0 {
		return
	}
	choice := chunk.Choices[0]

	if choice.Delta.Content != "" {
		writeEvent(out, "content_block_delta", map[string]any{
			"type":  "content_block_delta",
			"index": 0,
			"delta": map[string]any{"type": "text_delta", "text": choice.Delta.Content},
		})
	}

	if choice.FinishReason != "" && !s.finishedSeen {
		s.finishedSeen = true
		writeEvent(out, "message_delta", map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": mapFinishReason(choice.FinishReason)},
		})
	}
}

func writeEvent(out *strings.Builder, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(out, "event: %s\ndata: %s\n\n", name, data)
}
