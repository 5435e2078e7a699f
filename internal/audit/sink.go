// Package audit appends one usage record per flushed request to a flat
// CSV file (spec.md §4.7; explicitly out of scope per spec.md §1's
// non-goals list as an external collaborator whose only contract is the
// record shape it exposes — hence the plain encoding/csv writer below
// rather than a dedicated logging/audit library).
package audit

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"
)

var header = []string{"timestamp", "router", "channel", "model", "input_tokens", "output_tokens"}

// Record is one usage-accounting flush (spec.md §4.7's flush tuple).
type Record struct {
	Timestamp    time.Time
	Router       string
	Channel      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Sink appends Records to a CSV file, writing the header once if the
// file is new or empty.
type Sink struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

// Open creates or appends to the CSV file at path, writing the header
// row only when the file did not previously exist or was empty.
func Open(path string) (*Sink, error) {
	info, statErr := os.Stat(path)
	needsHeader := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit sink %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write audit header: %w", err)
		}
		w.Flush()
	}

	return &Sink{path: path, file: f, w: w}, nil
}

// Append writes one record and flushes immediately. Best-effort per
// spec.md §4.7: callers log failures but never propagate them into the
// request path.
func (s *Sink) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := []string{
		r.Timestamp.UTC().Format(time.RFC3339),
		r.Router,
		r.Channel,
		r.Model,
		fmt.Sprintf("%d", r.InputTokens),
		fmt.Sprintf("%d", r.OutputTokens),
	}
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	return s.file.Close()
}
