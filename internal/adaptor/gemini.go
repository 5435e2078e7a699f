package adaptor

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cregis-dev/apex/internal/protocol"
)

// Gemini adapts requests for Google's Gemini API, including its
// OpenAI-compatible endpoint variant (base URL containing "/openai").
// See spec.md §4.2, Gemini row.
type Gemini struct{}

func (a *Gemini) MapPath(req Request) (string, error) {
	base := baseURLFor(req)
	path := req.Path
	if req.Route == RouteAnthropic {
		path = "chat/completions"
	} else {
		path = strings.TrimPrefix(strings.TrimPrefix(path, "/"), "v1/")
	}
	return JoinURL(base, path), nil
}

func (a *Gemini) MapQuery(req Request) url.Values {
	if req.Route == RouteAnthropic {
		return nil
	}
	return req.Query
}

func (a *Gemini) TransformBody(req Request) ([]byte, error) {
	body := req.Body
	if req.Route == RouteAnthropic {
		converted, err := protocol.AnthropicToOpenAIRequest(body)
		if err != nil {
			return nil, err
		}
		body = converted
	}
	return ApplyModelMap(body, req.Channel.ModelMap)
}

func (a *Gemini) ApplyAuthHeaders(req Request, headers http.Header) {
	if strings.Contains(baseURLFor(req), "/openai") {
		headers.Set("Authorization", fmt.Sprintf("Bearer %s", req.Channel.APIKey))
		return
	}
	headers.Set("x-goog-api-key", req.Channel.APIKey)
}

func (a *Gemini) HandleResponse(req Request, status int, respHeaders http.Header, body []byte) (string, []byte, error) {
	if req.Route == RouteAnthropic {
		converted, err := protocol.OpenAIToAnthropicResponse(body, protocol.ExtractStopSequences(req.Body))
		if err != nil {
			return "", nil, err
		}
		return "application/json", converted, nil
	}
	return respHeaders.Get("Content-Type"), body, nil
}

func (a *Gemini) StreamTransform(req Request) func([]byte) []byte {
	if req.Route != RouteAnthropic {
		return nil
	}
	converter := protocol.NewSSEConverter()
	return converter.Feed
}
