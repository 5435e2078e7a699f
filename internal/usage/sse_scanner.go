package usage

import "strings"

// SSEScanner extracts usage counts from a raw OpenAI-compatible SSE
// stream as chunks arrive off the wire, carrying over at most one
// partial line between Feed calls — the same line-assembly contract
// protocol.SSEConverter uses, applied here purely for accounting rather
// than event translation.
type SSEScanner struct {
	carry  strings.Builder
	Counts Counts
}

// Feed scans chunk for complete "data: ..." lines and folds any usage
// object found into s.Counts.
func (s *SSEScanner) Feed(chunk []byte) {
	s.carry.Write(chunk)
	buffered := s.carry.String()

	for {
		idx := strings.IndexByte(buffered, '\n')
		if idx < 0 {
			break
		}
		line := strings.TrimRight(buffered[:idx], "\r")
		buffered = buffered[idx+1:]
		s.handleLine(line)
	}

	s.carry.Reset()
	s.carry.WriteString(buffered)
}

func (s *SSEScanner) handleLine(line string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "data:") {
		return
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" || payload == "[DONE]" {
		return
	}
	s.Counts.Extract([]byte(payload))
}
