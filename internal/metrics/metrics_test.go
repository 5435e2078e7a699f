package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	assert.NotNil(t, c.requestsTotal)
	assert.NotNil(t, c.errorsTotal)
	assert.NotNil(t, c.fallbackTotal)
	assert.NotNil(t, c.upstreamLatencyMS)
	assert.NotNil(t, c.tokenTotal)
}

func TestCollector_RecordRequest(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("openai", "default")
	assert.Greater(t, testutil.CollectAndCount(c.requestsTotal), 0)
}

func TestCollector_RecordFallback(t *testing.T) {
	c := NewCollector()
	c.RecordFallback("default", "fallback-channel")
	assert.Equal(t, float64(1), testutil.ToFloat64(c.fallbackTotal.WithLabelValues("default", "fallback-channel")))
}

func TestCollector_RecordTokens_SkipsNonPositive(t *testing.T) {
	c := NewCollector()
	c.RecordTokens("default", "ch1", "gpt-4", "input", 0)
	assert.Equal(t, 0, testutil.CollectAndCount(c.tokenTotal))

	c.RecordTokens("default", "ch1", "gpt-4", "input", 10)
	assert.Equal(t, float64(10), testutil.ToFloat64(c.tokenTotal.WithLabelValues("default", "ch1", "gpt-4", "input")))
}

func TestCollector_HandlerServesRegisteredSeries(t *testing.T) {
	c := NewCollector()
	c.RecordRequest("openai", "default")
	assert.NotNil(t, c.Handler())
}
