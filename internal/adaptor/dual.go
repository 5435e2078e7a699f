package adaptor

import (
	"net/http"
	"net/url"
	"strings"
)

// DualProtocol composes the OpenAI and Anthropic adapters by delegation
// for providers that expose both protocols on sibling base-URL paths
// (Deepseek, Moonshot, Minimax — spec.md §4.2, Dual-protocol row).
// anthropicPath names the path segment the provider mounts its Anthropic
// endpoint under (observed as "anthropic" across the pack).
type DualProtocol struct {
	openai        Adaptor
	anthropic     Adaptor
	anthropicPath string
}

// rewriteDualBase swaps the trailing "/v1" or "/<anthropicPath>" segment
// of base according to route, returning the rewritten absolute base.
func (a *DualProtocol) rewriteDualBase(base string, route Route) string {
	trimmed := strings.TrimSuffix(base, "/")
	trimmed = strings.TrimSuffix(trimmed, "/v1")
	trimmed = strings.TrimSuffix(trimmed, "/"+a.anthropicPath)

	switch route {
	case RouteAnthropic:
		return trimmed + "/" + a.anthropicPath
	default:
		return trimmed + "/v1"
	}
}

func (a *DualProtocol) delegate(req Request) Adaptor {
	if req.Route == RouteAnthropic {
		return a.anthropic
	}
	return a.openai
}

// withRewrittenBase returns a copy of req whose Channel.BaseURL (and
// AnthropicBaseURL, so baseURLFor picks it up uniformly) is the
// route-appropriate rewritten absolute base.
func (a *DualProtocol) withRewrittenBase(req Request) Request {
	original := req.Channel.BaseURL
	if req.Route == RouteAnthropic && req.Channel.AnthropicBaseURL != "" {
		original = req.Channel.AnthropicBaseURL
	}
	rewritten := a.rewriteDualBase(original, req.Route)
	req.Channel.BaseURL = rewritten
	req.Channel.AnthropicBaseURL = rewritten
	return req
}

func (a *DualProtocol) MapPath(req Request) (string, error) {
	return a.delegate(req).MapPath(a.withRewrittenBase(req))
}

func (a *DualProtocol) MapQuery(req Request) url.Values {
	return a.delegate(req).MapQuery(req)
}

func (a *DualProtocol) TransformBody(req Request) ([]byte, error) {
	return a.delegate(req).TransformBody(req)
}

func (a *DualProtocol) ApplyAuthHeaders(req Request, headers http.Header) {
	a.delegate(req).ApplyAuthHeaders(req, headers)
}

func (a *DualProtocol) HandleResponse(req Request, status int, respHeaders http.Header, body []byte) (string, []byte, error) {
	return a.delegate(req).HandleResponse(req, status, respHeaders, body)
}

func (a *DualProtocol) StreamTransform(req Request) func([]byte) []byte {
	return a.delegate(req).StreamTransform(req)
}
