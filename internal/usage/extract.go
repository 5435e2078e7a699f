// Package usage implements spec.md §4.7's usage accounting: extracting
// token counts from a response body or stream and flushing them to
// metrics and the audit sink.
package usage

import (
	"encoding/json"
	"time"

	"github.com/Laisky/zap"

	"github.com/cregis-dev/apex/internal/audit"
	"github.com/cregis-dev/apex/internal/metrics"
)

// Counts accumulates input/output token counts across one or more
// extract_usage calls (Anthropic streams report usage incrementally
// across several JSON lines).
type Counts struct {
	InputTokens  int
	OutputTokens int
}

type usagePayload struct {
	PromptTokens            *int `json:"prompt_tokens"`
	CompletionTokens        *int `json:"completion_tokens"`
	InputTokens             *int `json:"input_tokens"`
	OutputTokens            *int `json:"output_tokens"`
	CacheReadInputTokens    *int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens *int `json:"cache_creation_input_tokens"`
}

type extractShape struct {
	Usage   *usagePayload `json:"usage"`
	Message *struct {
		Usage *usagePayload `json:"usage"`
	} `json:"message"`
}

// Extract reads one JSON payload (a full response body, or one decoded
// SSE data line) and folds any usage fields it finds into c. OpenAI's
// prompt_tokens/completion_tokens are absolute; Anthropic's
// input_tokens/output_tokens (including the cache-token variants folded
// into input_tokens per SPEC_FULL.md §5.7) are additive, since Anthropic
// streams report usage incrementally across several events.
func (c *Counts) Extract(raw []byte) {
	var shape extractShape
	if err := json.Unmarshal(raw, &shape); err != nil {
		return
	}
	c.apply(shape.Usage)
	if shape.Message != nil {
		c.apply(shape.Message.Usage)
	}
}

func (c *Counts) apply(u *usagePayload) {
	if u == nil {
		return
	}
	if u.PromptTokens != nil {
		c.InputTokens = *u.PromptTokens
	}
	if u.CompletionTokens != nil {
		c.OutputTokens = *u.CompletionTokens
	}
	if u.InputTokens != nil {
		c.InputTokens += *u.InputTokens
	}
	if u.OutputTokens != nil {
		c.OutputTokens += *u.OutputTokens
	}
	if u.CacheReadInputTokens != nil {
		c.InputTokens += *u.CacheReadInputTokens
	}
	if u.CacheCreationInputTokens != nil {
		c.InputTokens += *u.CacheCreationInputTokens
	}
}

// Flush increments the per-(router,channel,model) metrics counters and
// appends one audit record, when at least one count is non-zero.
// Best-effort: audit write failures are logged, never returned, per
// spec.md §4.7.
func Flush(collector *metrics.Collector, sink *audit.Sink, log *zap.Logger, router, channel, model string, c Counts) {
	if c.InputTokens <= 0 && c.OutputTokens <= 0 {
		return
	}

	collector.RecordTokens(router, channel, model, "input", c.InputTokens)
	collector.RecordTokens(router, channel, model, "output", c.OutputTokens)

	if sink == nil {
		return
	}
	err := sink.Append(audit.Record{
		Timestamp:    time.Now(),
		Router:       router,
		Channel:      channel,
		Model:        model,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
	})
	if err != nil && log != nil {
		log.Warn("audit sink append failed", zap.Error(err))
	}
}
