package adaptor

import (
	"net/http"
	"strings"
)

// hopByHopAndCredentialHeaders lists the exact header names stripped
// from the inbound request before it is forwarded upstream (spec.md
// §4.2 "Upstream header shaping").
var hopByHopAndCredentialHeaders = []string{
	"Host", "Content-Length", "X-Api-Key", "Authorization", "Accept-Encoding",
}

var strippedPrefixes = []string{"anthropic-", "x-stainless-"}

// ShapeUpstreamHeaders builds the header set sent upstream: start from
// inbound, strip hop-by-hop and credential headers and anything
// prefixed anthropic-/x-stainless-, then merge the channel's extra
// headers. The adapter is expected to set its own credential header(s)
// afterward.
func ShapeUpstreamHeaders(inbound http.Header, extra map[string]string) http.Header {
	out := make(http.Header, len(inbound))
	for k, v := range inbound {
		lower := strings.ToLower(k)
		if isStripped(lower) {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	for k, v := range extra {
		out.Set(k, v)
	}
	return out
}

func isStripped(lowerKey string) bool {
	for _, h := range hopByHopAndCredentialHeaders {
		if strings.ToLower(h) == lowerKey {
			return true
		}
	}
	for _, p := range strippedPrefixes {
		if strings.HasPrefix(lowerKey, p) {
			return true
		}
	}
	return false
}

// ForwardableResponseHeaders filters upstream response headers for
// relay to the client: everything except transfer-encoding and
// content-length, which the relay recomputes (spec.md §4.2).
func ForwardableResponseHeaders(upstream http.Header) http.Header {
	out := make(http.Header, len(upstream))
	for k, v := range upstream {
		lower := strings.ToLower(k)
		if lower == "transfer-encoding" || lower == "content-length" {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}
