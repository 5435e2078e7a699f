package adaptor

import (
	"net/http"
	"net/url"
)

// anthropicVersion is the default protocol version header set when the
// channel's extra headers didn't already supply one. An inbound
// anthropic-version header never reaches this point: ShapeUpstreamHeaders
// strips every anthropic-* header first.
const anthropicVersion = "2023-06-01"

// Anthropic adapts requests for providers that natively speak the
// Anthropic Messages API. Path/query pass through; body only gets model
// remapping; response is pure passthrough (spec.md §4.2, Anthropic row).
type Anthropic struct{}

func (a *Anthropic) MapPath(req Request) (string, error) {
	return JoinURL(baseURLFor(req), req.Path), nil
}

func (a *Anthropic) MapQuery(req Request) url.Values {
	return req.Query
}

func (a *Anthropic) TransformBody(req Request) ([]byte, error) {
	return ApplyModelMap(req.Body, req.Channel.ModelMap)
}

func (a *Anthropic) ApplyAuthHeaders(req Request, headers http.Header) {
	headers.Set("x-api-key", req.Channel.APIKey)
	if headers.Get("anthropic-version") == "" {
		headers.Set("anthropic-version", anthropicVersion)
	}
}

func (a *Anthropic) HandleResponse(req Request, status int, respHeaders http.Header, body []byte) (string, []byte, error) {
	return respHeaders.Get("Content-Type"), body, nil
}

func (a *Anthropic) StreamTransform(req Request) func([]byte) []byte {
	return nil
}
