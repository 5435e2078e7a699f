package adaptor

import "strings"

// JoinURL assembles base and path into one upstream URL, ensuring base
// ends with exactly one "/" and deduplicating a leading "v1/" in path
// when base already ends in "/v1/" (spec.md §4.2 "URL assembly").
// Invariant: the result never contains "…/v1/v1/…".
func JoinURL(base, path string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	path = strings.TrimPrefix(path, "/")

	if strings.HasSuffix(base, "/v1/") && strings.HasPrefix(path, "v1/") {
		path = strings.TrimPrefix(path, "v1/")
	}
	return base + path
}
