package protocol

import (
	"encoding/json"

	"github.com/Laisky/errors/v2"
)

// AnthropicToOpenAIRequest translates an inbound Anthropic Messages API
// request body into an OpenAI chat-completions request body, per
// spec.md §4.3: copy model/max_tokens/temperature/top_p/top_k/stream,
// turn a top-level "system" string into a prepended system message, and
// append the original messages verbatim.
func AnthropicToOpenAIRequest(body []byte) ([]byte, error) {
	var req AnthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, errors.Wrap(err, "decode anthropic request")
	}

	var messages []json.RawMessage
	if len(req.Messages) > 0 {
		if err := json.Unmarshal(req.Messages, &messages); err != nil {
			return nil, errors.Wrap(err, "decode anthropic request messages")
		}
	}

	out := map[string]any{
		"model": req.Model,
	}
	if req.MaxTokens != nil {
		out["max_tokens"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		out["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		out["top_p"] = *req.TopP
	}
	if req.TopK != nil {
		out["top_k"] = *req.TopK
	}
	if req.Stream {
		out["stream"] = true
	}
	if len(req.StopSequences) > 0 {
		out["stop"] = req.StopSequences
	}

	allMessages := make([]json.RawMessage, 0, len(messages)+1)
	if req.System != "" {
		sysMsg, err := json.Marshal(map[string]string{"role": "system", "content": req.System})
		if err != nil {
			return nil, errors.Wrap(err, "encode synthesized system message")
		}
		allMessages = append(allMessages, sysMsg)
	}
	allMessages = append(allMessages, messages...)
	out["messages"] = allMessages

	return json.Marshal(out)
}

// OpenAIToAnthropicResponse translates a non-streaming OpenAI
// chat-completion response body into an Anthropic Messages API response
// body, per spec.md §4.3. stopSequences is the originating request's
// stop-sequence list (see ExtractStopSequences), consulted for the
// stop_sequence pass-through supplement in SPEC_FULL.md §5.3.
func OpenAIToAnthropicResponse(body []byte, stopSequences []string) ([]byte, error) {
	var resp OpenAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "decode openai response")
	}

	if resp.Error != nil {
		errType := resp.Error.Type
		if errType == "" {
			errType = "invalid_request_error"
		}
		msg := resp.Error.Message
		if msg == "" {
			msg = "Unknown error"
		}
		return json.Marshal(AnthropicErrorResponse{
			Type: "error",
			Error: AnthropicErrorBody{
				Type:    errType,
				Message: msg,
			},
		})
	}

	var text string
	var finishReason string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
		finishReason = resp.Choices[0].FinishReason
	}

	var usage AnthropicUsage
	if resp.Usage != nil {
		usage = AnthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		}
	}

	stopReason, matchedStop := resolveStopReason(finishReason, stopSequences)
	out := AnthropicResponse{
		ID:   resp.ID,
		Type: "message",
		Role: "assistant",
		Content: []AnthropicContentBlock{
			{Type: "text", Text: text},
		},
		StopReason:   stopReason,
		StopSequence: matchedStop,
		Model:        resp.Model,
		Usage:        usage,
	}
	return json.Marshal(out)
}
