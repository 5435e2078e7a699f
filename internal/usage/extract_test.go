package usage

import (
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/Laisky/zap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cregis-dev/apex/internal/audit"
	"github.com/cregis-dev/apex/internal/metrics"
)

func TestExtract_OpenAIAbsoluteCounts(t *testing.T) {
	var c Counts
	c.Extract([]byte(`{"usage":{"prompt_tokens":3,"completion_tokens":4}}`))
	assert.Equal(t, 3, c.InputTokens)
	assert.Equal(t, 4, c.OutputTokens)
}

func TestExtract_AnthropicIncrementalAdds(t *testing.T) {
	var c Counts
	c.Extract([]byte(`{"message":{"usage":{"input_tokens":10,"output_tokens":0}}}`))
	c.Extract([]byte(`{"usage":{"output_tokens":5}}`))
	c.Extract([]byte(`{"usage":{"output_tokens":7}}`))
	assert.Equal(t, 10, c.InputTokens)
	assert.Equal(t, 12, c.OutputTokens)
}

func TestExtract_CacheTokensFoldIntoInput(t *testing.T) {
	var c Counts
	c.Extract([]byte(`{"usage":{"input_tokens":10,"cache_read_input_tokens":2,"cache_creation_input_tokens":3}}`))
	assert.Equal(t, 15, c.InputTokens)
}

func TestExtract_MalformedJSONIgnored(t *testing.T) {
	var c Counts
	c.Extract([]byte(`not json`))
	assert.Equal(t, 0, c.InputTokens)
	assert.Equal(t, 0, c.OutputTokens)
}

func TestFlush_SkipsWhenBothCountsZero(t *testing.T) {
	collector := metrics.NewCollector()
	Flush(collector, nil, zap.NewNop(), "default", "ch1", "gpt-4", Counts{})
	assert.NotContains(t, scrapeBody(collector), "apex_token_total")
}

func TestFlush_WritesMetricsAndAudit(t *testing.T) {
	collector := metrics.NewCollector()
	dir := t.TempDir()
	sink, err := audit.Open(filepath.Join(dir, "audit.csv"))
	require.NoError(t, err)
	defer sink.Close()

	Flush(collector, sink, zap.NewNop(), "default", "ch1", "gpt-4", Counts{InputTokens: 3, OutputTokens: 4})
	assert.Contains(t, scrapeBody(collector), "apex_token_total")
}

func scrapeBody(c *metrics.Collector) string {
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}
