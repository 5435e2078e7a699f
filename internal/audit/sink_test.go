package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpen_WritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.csv")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(Record{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Router:    "default", Channel: "ch1", Model: "gpt-4",
		InputTokens: 3, OutputTokens: 4,
	}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Append(Record{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		Router:    "default", Channel: "ch1", Model: "gpt-4",
		InputTokens: 1, OutputTokens: 2,
	}))
	require.NoError(t, s2.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := 0
	for _, b := range contents {
		if b == '\n' {
			lines++
		}
	}
	require.Equal(t, 3, lines) // header + 2 records
}

func TestAppend_RecordShape(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.csv")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Append(Record{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Router:    "default", Channel: "ch1", Model: "gpt-4",
		InputTokens: 3, OutputTokens: 4,
	}))
	require.NoError(t, s.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "timestamp,router,channel,model,input_tokens,output_tokens")
	require.Contains(t, string(contents), "default,ch1,gpt-4,3,4")
}
