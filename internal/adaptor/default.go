package adaptor

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/cregis-dev/apex/internal/protocol"
)

// Default adapts requests for OpenAI-compatible providers that need no
// special URL handling beyond the Anthropic-route rewrite: Ollama,
// OpenRouter, and (with stripTopKOnAnthropicRoute) Jina (spec.md §4.2,
// "Default" row).
type Default struct {
	// stripTopKOnAnthropicRoute drops top_k after Anthropic->OpenAI
	// translation. Jina's OpenAI-compatible endpoint 400s on an unknown
	// sampling parameter it doesn't support (SPEC_FULL.md §5.2).
	stripTopKOnAnthropicRoute bool
}

func (a *Default) MapPath(req Request) (string, error) {
	path := req.Path
	if req.Route == RouteAnthropic {
		path = "chat/completions"
	}
	return JoinURL(baseURLFor(req), path), nil
}

func (a *Default) MapQuery(req Request) url.Values {
	return req.Query
}

func (a *Default) TransformBody(req Request) ([]byte, error) {
	body := req.Body
	if req.Route == RouteAnthropic {
		converted, err := protocol.AnthropicToOpenAIRequest(body)
		if err != nil {
			return nil, err
		}
		body = converted
		if a.stripTopKOnAnthropicRoute {
			stripped, err := StripField(body, "top_k")
			if err != nil {
				return nil, err
			}
			body = stripped
		}
	}
	return ApplyModelMap(body, req.Channel.ModelMap)
}

func (a *Default) ApplyAuthHeaders(req Request, headers http.Header) {
	headers.Set("Authorization", fmt.Sprintf("Bearer %s", req.Channel.APIKey))
}

func (a *Default) HandleResponse(req Request, status int, respHeaders http.Header, body []byte) (string, []byte, error) {
	if req.Route == RouteAnthropic {
		converted, err := protocol.OpenAIToAnthropicResponse(body, protocol.ExtractStopSequences(req.Body))
		if err != nil {
			return "", nil, err
		}
		return "application/json", converted, nil
	}
	return respHeaders.Get("Content-Type"), body, nil
}

func (a *Default) StreamTransform(req Request) func([]byte) []byte {
	if req.Route != RouteAnthropic {
		return nil
	}
	converter := protocol.NewSSEConverter()
	return converter.Feed
}
