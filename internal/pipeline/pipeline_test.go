package pipeline

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cregis-dev/apex/internal/adaptor"
	"github.com/cregis-dev/apex/internal/config"
	"github.com/cregis-dev/apex/internal/logger"
	"github.com/cregis-dev/apex/internal/metrics"
	"github.com/cregis-dev/apex/internal/ratelimit"
	"github.com/cregis-dev/apex/internal/selector"
	"github.com/cregis-dev/apex/internal/tokencount"
)

func newTestPipeline(t *testing.T, doc config.Document) (*Pipeline, *config.Store) {
	t.Helper()
	snap, err := config.NewSnapshot(doc)
	require.NoError(t, err)
	store := config.NewStore(snap)
	log := logger.Nop()
	return &Pipeline{
		Store:     store,
		Selector:  selector.New(store),
		Registry:  adaptor.NewRegistry(),
		Limiter:   ratelimit.New(),
		Estimator: tokencount.NewEstimator(),
		Metrics:   metrics.NewCollector(),
		Audit:     nil,
		Logger:    log,
		Client:    NewHTTPClient(),
	}, store
}

// TestHandle_FallbackOnPrimaryFailure implements spec.md §8 scenario 4:
// primary channel 500s once (retry_on_status=[500], max_attempts=1), the
// single fallback channel succeeds, and the client sees the fallback's
// 200.
func TestHandle_FallbackOnPrimaryFailure(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		w.Write([]byte(`{"error":{"message":"boom"}}`))
	}))
	defer primary.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte(`{"id":"x","model":"gpt-4","choices":[{"message":{"content":"hi"},"finish_reason":"stop"}]}`))
	}))
	defer fallback.Close()

	doc := config.Document{
		Global: config.Global{
			Auth:    config.AuthConfig{Mode: config.AuthModeNone},
			Retries: config.RetryConfig{MaxAttempts: 1, BackoffMS: 0, RetryOnStatus: []int{500}},
		},
		Channels: []config.Channel{
			{Name: "primary-ch", ProviderType: config.ProviderOpenAI, BaseURL: primary.URL},
			{Name: "fallback-ch", ProviderType: config.ProviderOpenAI, BaseURL: fallback.URL},
		},
		Routers: []config.Router{{
			Name: "default",
			Rules: []config.RouterRule{{
				MatchSpec: config.MatchSpec{Models: []string{"gpt-4"}},
				Channels:  []config.WeightedChannel{{Name: "primary-ch", Weight: 1}},
				Strategy:  config.StrategyPriority,
			}},
			FallbackChannels: []string{"fallback-ch"},
		}},
	}

	p, _ := newTestPipeline(t, doc)
	rec := httptest.NewRecorder()
	p.Handle(context.Background(), adaptor.RouteOpenAI, "/v1/chat/completions", http.Header{}, bytes.NewReader([]byte(`{"model":"gpt-4"}`)), rec)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hi"`)
}

func TestHandle_AllChannelsFailReturns502(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		w.Write([]byte(`{"error":{"message":"down"}}`))
	}))
	defer upstream.Close()

	doc := config.Document{
		Global: config.Global{
			Auth:    config.AuthConfig{Mode: config.AuthModeNone},
			Retries: config.RetryConfig{MaxAttempts: 1, RetryOnStatus: []int{500}},
		},
		Channels: []config.Channel{{Name: "ch1", ProviderType: config.ProviderOpenAI, BaseURL: upstream.URL}},
		Routers: []config.Router{{
			Name: "default",
			Rules: []config.RouterRule{{
				MatchSpec: config.MatchSpec{Models: []string{"gpt-4"}},
				Channels:  []config.WeightedChannel{{Name: "ch1", Weight: 1}},
				Strategy:  config.StrategyPriority,
			}},
		}},
	}

	p, _ := newTestPipeline(t, doc)
	rec := httptest.NewRecorder()
	p.Handle(context.Background(), adaptor.RouteOpenAI, "/v1/chat/completions", http.Header{}, bytes.NewReader([]byte(`{"model":"gpt-4"}`)), rec)

	assert.Equal(t, 502, rec.Code)
	assert.Contains(t, rec.Body.String(), "all channels failed")
}

// TestHandle_AllChannelsFailAppliesStopSequencePassThrough exercises
// SPEC_FULL.md §5.3 on the finalFailure path: the upstream's custom
// finish_reason matches one of the inbound Anthropic request's
// stop_sequences, so the synthesized 502 envelope still carries
// stop_sequence.
func TestHandle_AllChannelsFailAppliesStopSequencePassThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		w.Write([]byte(`{"id":"x","model":"gpt-4","choices":[{"message":{"content":"hi"},"finish_reason":"###"}]}`))
	}))
	defer upstream.Close()

	doc := config.Document{
		Global: config.Global{
			Auth:    config.AuthConfig{Mode: config.AuthModeNone},
			Retries: config.RetryConfig{MaxAttempts: 1, RetryOnStatus: []int{500}},
		},
		Channels: []config.Channel{{Name: "ch1", ProviderType: config.ProviderOpenAI, BaseURL: upstream.URL}},
		Routers: []config.Router{{
			Name: "default",
			Rules: []config.RouterRule{{
				MatchSpec: config.MatchSpec{Models: []string{"claude-3"}},
				Channels:  []config.WeightedChannel{{Name: "ch1", Weight: 1}},
				Strategy:  config.StrategyPriority,
			}},
		}},
	}

	p, _ := newTestPipeline(t, doc)
	rec := httptest.NewRecorder()
	body := []byte(`{"model":"claude-3","stop_sequences":["###"]}`)
	p.Handle(context.Background(), adaptor.RouteAnthropic, "/v1/messages", http.Header{}, bytes.NewReader(body), rec)

	assert.Equal(t, 502, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stop_sequence":"###"`)
}

func TestHandle_GlobalAuthRejectsMissingKey(t *testing.T) {
	doc := config.Document{
		Global: config.Global{Auth: config.AuthConfig{Mode: config.AuthModeAPIKey, Keys: []string{"k1"}}},
	}
	p, _ := newTestPipeline(t, doc)
	rec := httptest.NewRecorder()
	p.Handle(context.Background(), adaptor.RouteOpenAI, "/v1/chat/completions", http.Header{}, bytes.NewReader([]byte(`{"model":"gpt-4"}`)), rec)
	assert.Equal(t, 401, rec.Code)
}

func TestHandle_TeamPolicyDeniesDisallowedModel(t *testing.T) {
	doc := config.Document{
		Channels: []config.Channel{{Name: "ch1", ProviderType: config.ProviderOpenAI, BaseURL: "https://example.invalid"}},
		Teams: []config.Team{{
			ID: "team-a", APIKey: "team-key",
			Policy: config.TeamPolicy{AllowedRouters: []string{"default"}, AllowedModels: []string{"gpt-4"}},
		}},
		Routers: []config.Router{{
			Name: "default",
			Rules: []config.RouterRule{{
				MatchSpec: config.MatchSpec{Models: []string{"*"}},
				Channels:  []config.WeightedChannel{{Name: "ch1", Weight: 1}},
				Strategy:  config.StrategyPriority,
			}},
		}},
	}
	p, _ := newTestPipeline(t, doc)
	headers := http.Header{}
	headers.Set("x-api-key", "team-key")
	rec := httptest.NewRecorder()
	p.Handle(context.Background(), adaptor.RouteOpenAI, "/v1/chat/completions", headers, bytes.NewReader([]byte(`{"model":"gpt-3.5"}`)), rec)
	assert.Equal(t, 403, rec.Code)
}

func TestHandle_OversizedBodyRejected(t *testing.T) {
	doc := config.Document{}
	p, _ := newTestPipeline(t, doc)
	oversized := bytes.Repeat([]byte("a"), MaxBodyBytes+1)
	rec := httptest.NewRecorder()
	p.Handle(context.Background(), adaptor.RouteOpenAI, "/v1/chat/completions", http.Header{}, bytes.NewReader(oversized), rec)
	assert.Equal(t, 400, rec.Code)
}

// TestHandle_StreamingRelaysChunksAsTheyArrive exercises spec.md §5's
// chunk-by-chunk relay path: the upstream flushes three separate SSE
// events back to back, and the client (an httptest.Server sitting in
// front of the gateway) must receive a text/event-stream response whose
// concatenated body still carries the content delta and the [DONE]
// sentinel. It checks the relayed body, not the arrival timing of each
// chunk.
func TestHandle_StreamingRelaysChunksAsTheyArrive(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(200)
		flusher := w.(http.Flusher)
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: {\"usage\":{\"prompt_tokens\":5,\"completion_tokens\":2}}\n\n"))
		flusher.Flush()
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer upstream.Close()

	doc := config.Document{
		Global:   config.Global{Auth: config.AuthConfig{Mode: config.AuthModeNone}},
		Channels: []config.Channel{{Name: "ch1", ProviderType: config.ProviderOpenAI, BaseURL: upstream.URL}},
		Routers: []config.Router{{
			Name: "default",
			Rules: []config.RouterRule{{
				MatchSpec: config.MatchSpec{Models: []string{"gpt-4"}},
				Channels:  []config.WeightedChannel{{Name: "ch1", Weight: 1}},
				Strategy:  config.StrategyPriority,
			}},
		}},
	}

	p, _ := newTestPipeline(t, doc)

	gatewayMux := http.NewServeMux()
	gatewayMux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		p.Handle(r.Context(), adaptor.RouteOpenAI, r.URL.Path, r.Header, r.Body, w)
	})
	gateway := httptest.NewServer(gatewayMux)
	defer gateway.Close()

	resp, err := http.Post(gateway.URL+"/v1/chat/completions", "application/json", bytes.NewReader([]byte(`{"model":"gpt-4","stream":true}`)))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	buf := new(bytes.Buffer)
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	relayed := buf.String()
	assert.Contains(t, relayed, `"content":"hi"`)
	assert.Contains(t, relayed, "[DONE]")
}

func TestResolveTimeouts_GlobalDefaultsApplyWhenChannelHasNoOverride(t *testing.T) {
	channel := config.Channel{}
	global := config.GlobalTimeouts{ConnectMS: 2000, RequestMS: 15000, ResponseMS: 45000}

	got := resolveTimeouts(channel, global)

	assert.Equal(t, 2*time.Second, got.Connect)
	assert.Equal(t, 15*time.Second, got.Request)
	assert.Equal(t, 45*time.Second, got.Response)
}

func TestResolveTimeouts_ChannelOverridesGlobal(t *testing.T) {
	channel := config.Channel{Timeouts: &config.Timeouts{ConnectMS: 500, RequestMS: 1000}}
	global := config.GlobalTimeouts{ConnectMS: 2000, RequestMS: 15000, ResponseMS: 45000}

	got := resolveTimeouts(channel, global)

	assert.Equal(t, 500*time.Millisecond, got.Connect)
	assert.Equal(t, 1*time.Second, got.Request)
	assert.Equal(t, 45*time.Second, got.Response)
}

func TestResolveTimeouts_PackageDefaultsApplyWhenNeitherSet(t *testing.T) {
	got := resolveTimeouts(config.Channel{}, config.GlobalTimeouts{})

	assert.Equal(t, defaultConnectTimeout, got.Connect)
	assert.Equal(t, defaultRequestTimeout, got.Request)
	assert.Equal(t, defaultResponseTimeout, got.Response)
}
