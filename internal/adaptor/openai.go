package adaptor

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/cregis-dev/apex/internal/protocol"
)

// OpenAI adapts requests for providers that natively speak the OpenAI
// protocol. Path and query pass through unchanged; body only gets model
// remapping (spec.md §4.2's adapter table, OpenAI row). The response
// passes through unchanged on the OpenAI route; on the Anthropic route
// both the buffered response and the SSE stream are translated into the
// Anthropic shape.
type OpenAI struct{}

func (a *OpenAI) MapPath(req Request) (string, error) {
	return JoinURL(baseURLFor(req), req.Path), nil
}

func (a *OpenAI) MapQuery(req Request) url.Values {
	return req.Query
}

func (a *OpenAI) TransformBody(req Request) ([]byte, error) {
	return ApplyModelMap(req.Body, req.Channel.ModelMap)
}

func (a *OpenAI) ApplyAuthHeaders(req Request, headers http.Header) {
	headers.Set("Authorization", fmt.Sprintf("Bearer %s", req.Channel.APIKey))
}

func (a *OpenAI) HandleResponse(req Request, status int, respHeaders http.Header, body []byte) (string, []byte, error) {
	if req.Route == RouteAnthropic {
		converted, err := protocol.OpenAIToAnthropicResponse(body, protocol.ExtractStopSequences(req.Body))
		if err != nil {
			return "", nil, err
		}
		return "application/json", converted, nil
	}
	return respHeaders.Get("Content-Type"), body, nil
}

func (a *OpenAI) StreamTransform(req Request) func([]byte) []byte {
	if req.Route != RouteAnthropic {
		return nil
	}
	converter := protocol.NewSSEConverter()
	return converter.Feed
}

// baseURLFor picks the channel's inbound-route-appropriate base URL:
// AnthropicBaseURL when the inbound route is Anthropic and one is
// configured, else BaseURL.
func baseURLFor(req Request) string {
	if req.Route == RouteAnthropic && req.Channel.AnthropicBaseURL != "" {
		return req.Channel.AnthropicBaseURL
	}
	return req.Channel.BaseURL
}
