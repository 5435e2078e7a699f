package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wellFormedOpenAIStream builds a minimal but realistic OpenAI SSE
// stream ending in [DONE], split across arbitrary chunk boundaries to
// exercise the line-assembly carry-over.
func wellFormedOpenAIStream() []string {
	return []string{
		"data: {\"model\":\"gpt-4\",\"choices\":[{\"delta\":{\"content\":\"Hel",
		"lo\"},\"finish_reason\":null}]}\n\n",
		"data: {\"model\":\"gpt-4\",\"choices\":[{\"delta\":{\"content\":\" world\"},\"finish_reason\":null}]}\n\n",
		"data: {\"model\":\"gpt-4\",\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n",
		"data: [DONE]\n\n",
	}
}

func TestSSEConverter_EmitsExpectedEventSequence(t *testing.T) {
	conv := NewSSEConverter()
	var all strings.Builder
	for _, chunk := range wellFormedOpenAIStream() {
		all.Write(conv.Feed([]byte(chunk)))
	}

	output := all.String()
	assert.Equal(t, 1, strings.Count(output, "event: message_start"))
	assert.GreaterOrEqual(t, strings.Count(output, "event: content_block_start"), 1)
	assert.Contains(t, output, "event: message_stop")

	// message_stop must be the last event emitted.
	events := strings.Split(strings.TrimSpace(output), "\n\n")
	require.NotEmpty(t, events)
	assert.Contains(t, events[len(events)-1], "message_stop")
}

func TestSSEConverter_HoldsPartialLineUntilNewline(t *testing.T) {
	conv := NewSSEConverter()
	// A chunk with no trailing newline yields no events yet.
	out := conv.Feed([]byte("data: {\"model\":\"gpt-4\""))
	assert.Empty(t, out)
}

func TestSSEConverter_SkipsMalformedLines(t *testing.T) {
	conv := NewSSEConverter()
	out := conv.Feed([]byte(": this is a comment line, not data\n\nnot-data-either\n\n"))
	assert.Empty(t, out)
}

func TestSSEConverter_ContentDeltaCarriesText(t *testing.T) {
	conv := NewSSEConverter()
	var all strings.Builder
	for _, chunk := range wellFormedOpenAIStream() {
		all.Write(conv.Feed([]byte(chunk)))
	}
	assert.Contains(t, all.String(), "Hello")
	assert.Contains(t, all.String(), "world")
}
