// Package protocol implements Anthropic<->OpenAI request and response
// translation, including SSE stream conversion (spec.md §4.3).
package protocol

import "encoding/json"

// OpenAIMessage is one entry in an OpenAI-style messages array. Content
// is left as json.RawMessage because it may be a string or a content
// block array; this package only needs to read/prepend, never interpret
// it beyond pass-through.
type OpenAIMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// OpenAIRequest is the subset of an OpenAI chat-completions request body
// this gateway translates. Unknown fields are intentionally dropped on
// conversion, per spec.md §4.3 ("Preserve unknown fields by ignoring").
type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
	Stop        json.RawMessage `json:"stop,omitempty"`
}

// AnthropicRequest is the subset of an Anthropic Messages API request
// body this gateway translates.
type AnthropicRequest struct {
	Model         string          `json:"model"`
	System        string          `json:"system,omitempty"`
	Messages      json.RawMessage `json:"messages"`
	MaxTokens     *int            `json:"max_tokens,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
}

// OpenAIChoice is one entry in an OpenAI non-streaming response's
// choices array.
type OpenAIChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// OpenAIUsage mirrors the usage object OpenAI-compatible providers emit.
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// OpenAIError is the shape of an OpenAI-style error envelope.
type OpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// OpenAIResponse is a non-streaming OpenAI chat-completion response.
type OpenAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Usage   *OpenAIUsage   `json:"usage,omitempty"`
	Error   *OpenAIError   `json:"error,omitempty"`
}

// AnthropicContentBlock is one entry in an Anthropic message's content
// array.
type AnthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// AnthropicUsage mirrors Anthropic's usage object.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// AnthropicErrorBody is the inner error object of an Anthropic error
// envelope.
type AnthropicErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicErrorResponse is the full Anthropic-style error envelope.
type AnthropicErrorResponse struct {
	Type  string             `json:"type"`
	Error AnthropicErrorBody `json:"error"`
}

// AnthropicResponse is a non-streaming Anthropic Messages API response.
type AnthropicResponse struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Role         string                  `json:"role"`
	Content      []AnthropicContentBlock `json:"content"`
	StopReason   string                  `json:"stop_reason"`
	StopSequence *string                 `json:"stop_sequence,omitempty"`
	Model        string                  `json:"model"`
	Usage        AnthropicUsage          `json:"usage"`
}

// mapFinishReason implements spec.md §4.3's three-way map:
// stop->end_turn, length->max_tokens, else->stop_sequence; absent (empty
// string) -> end_turn.
func mapFinishReason(reason string) string {
	switch reason {
	case "", "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return "stop_sequence"
	}
}

// resolveStopReason refines mapFinishReason with SPEC_FULL.md §5.3's
// stop_sequence pass-through: when an upstream finish_reason isn't
// "stop"/"length" but matches one of the original request's stop
// sequences verbatim, the matched string is surfaced as stop_sequence
// alongside the stop_reason, instead of the generic else-branch
// producing stop_reason with no matched text.
func resolveStopReason(reason string, stopSequences []string) (stopReason string, matched *string) {
	stopReason = mapFinishReason(reason)
	if stopReason != "stop_sequence" {
		return stopReason, nil
	}
	for _, s := range stopSequences {
		if s == reason {
			m := s
			return stopReason, &m
		}
	}
	return stopReason, nil
}

// ExtractStopSequences reads the stop-sequence list from a request body
// regardless of which protocol shape it's in: Anthropic's
// "stop_sequences" array, or OpenAI's "stop" field (a bare string or an
// array of strings). Returns nil if absent or unparseable.
func ExtractStopSequences(requestBody []byte) []string {
	var anthropic struct {
		StopSequences []string `json:"stop_sequences"`
	}
	if err := json.Unmarshal(requestBody, &anthropic); err == nil && len(anthropic.StopSequences) > 0 {
		return anthropic.StopSequences
	}

	var openai struct {
		Stop json.RawMessage `json:"stop"`
	}
	if err := json.Unmarshal(requestBody, &openai); err != nil || len(openai.Stop) == 0 {
		return nil
	}
	var asSlice []string
	if err := json.Unmarshal(openai.Stop, &asSlice); err == nil {
		return asSlice
	}
	var asString string
	if err := json.Unmarshal(openai.Stop, &asString); err == nil && asString != "" {
		return []string{asString}
	}
	return nil
}
