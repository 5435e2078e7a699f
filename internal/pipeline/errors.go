package pipeline

import "github.com/cregis-dev/apex/internal/adaptor"

// errorBody renders a client-facing error body shaped per spec.md §6, in
// the inbound route's native error envelope.
func errorBody(route adaptor.Route, message string) map[string]any {
	if route == adaptor.RouteAnthropic {
		return map[string]any{
			"type": "error",
			"error": map[string]any{
				"type":    "invalid_request_error",
				"message": message,
			},
		}
	}
	return map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
			"param":   nil,
			"code":    nil,
		},
	}
}
