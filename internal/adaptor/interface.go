// Package adaptor implements the per-provider adapter registry:
// URL/body/header shaping and cross-protocol response translation
// (spec.md §4.2), mirroring the teacher's relay/adaptor.Adaptor
// capability interface but scoped to what this gateway needs.
package adaptor

import (
	"net/http"
	"net/url"

	"github.com/cregis-dev/apex/internal/config"
)

// Route is the inbound protocol family, inferred from the endpoint path.
type Route string

const (
	RouteOpenAI    Route = "openai"
	RouteAnthropic Route = "anthropic"
)

// Request carries everything an Adaptor needs to prepare one upstream
// attempt against one Channel.
type Request struct {
	Route   Route
	Channel config.Channel
	Path    string // inbound path, e.g. "/v1/chat/completions"
	Query   url.Values
	Body    []byte
	Headers http.Header
}

// Prepared is the adapter's output: everything needed to issue the
// upstream HTTP request.
type Prepared struct {
	URL     string
	Query   url.Values
	Body    []byte
	Headers http.Header
}

// Adaptor implements the per-provider capability set from spec.md §4.2.
type Adaptor interface {
	// MapPath resolves the final upstream path or absolute URL for req.
	MapPath(req Request) (string, error)
	// MapQuery may drop or rewrite query parameters.
	MapQuery(req Request) url.Values
	// TransformBody applies protocol translation (if needed) and model
	// remapping.
	TransformBody(req Request) ([]byte, error)
	// ApplyAuthHeaders sets the provider's credential header(s) on
	// headers, given the channel's API key and (possibly rewritten)
	// base URL.
	ApplyAuthHeaders(req Request, headers http.Header)
	// HandleResponse translates (or passes through) the upstream
	// response body for relay to the client. Returns the
	// (possibly rewritten) content type and body.
	HandleResponse(req Request, status int, respHeaders http.Header, body []byte) (contentType string, out []byte, err error)
	// StreamTransform returns a stateful per-connection transform applied
	// to each raw chunk of a streaming (text/event-stream) upstream
	// response before it is relayed to the client, mirroring
	// HandleResponse's translation decision but applied incrementally so
	// no chunk is delayed waiting for the rest of the stream (spec.md
	// §4.3, §5). Returns nil when the adapter relays chunks unchanged.
	StreamTransform(req Request) func(chunk []byte) []byte
}

// Registry maps provider type to its Adaptor implementation.
type Registry struct {
	byProvider map[config.ProviderType]Adaptor
}

// NewRegistry builds the full registry described by spec.md §4.2's
// adapter table.
func NewRegistry() *Registry {
	openaiAdaptor := &OpenAI{}
	anthropicAdaptor := &Anthropic{}
	geminiAdaptor := &Gemini{}
	defaultAdaptor := &Default{}

	r := &Registry{byProvider: map[config.ProviderType]Adaptor{
		config.ProviderOpenAI:    openaiAdaptor,
		config.ProviderAnthropic: anthropicAdaptor,
		config.ProviderGemini:    geminiAdaptor,
		config.ProviderOllama:    defaultAdaptor,
		config.ProviderJina: &Default{
			stripTopKOnAnthropicRoute: true,
		},
		config.ProviderOpenRouter: defaultAdaptor,
		config.ProviderDeepseek: &DualProtocol{
			openai:    openaiAdaptor,
			anthropic: anthropicAdaptor,
			anthropicPath: "anthropic",
		},
		config.ProviderMoonshot: &DualProtocol{
			openai:    openaiAdaptor,
			anthropic: anthropicAdaptor,
			anthropicPath: "anthropic",
		},
		config.ProviderMinimax: &DualProtocol{
			openai:    openaiAdaptor,
			anthropic: anthropicAdaptor,
			anthropicPath: "anthropic",
		},
	}}
	return r
}

// For resolves the Adaptor for a given provider type.
func (r *Registry) For(pt config.ProviderType) (Adaptor, bool) {
	a, ok := r.byProvider[pt]
	return a, ok
}
