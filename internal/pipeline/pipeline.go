// Package pipeline orchestrates one inbound request end to end:
// ReadBody -> ParseModel -> AuthPolicy -> SelectRouter ->
// BuildCandidateList -> TryChannel* -> Respond (spec.md §4.6).
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/cregis-dev/apex/internal/adaptor"
	"github.com/cregis-dev/apex/internal/audit"
	"github.com/cregis-dev/apex/internal/auth"
	"github.com/cregis-dev/apex/internal/config"
	"github.com/cregis-dev/apex/internal/metrics"
	"github.com/cregis-dev/apex/internal/protocol"
	"github.com/cregis-dev/apex/internal/ratelimit"
	"github.com/cregis-dev/apex/internal/selector"
	"github.com/cregis-dev/apex/internal/tokencount"
	"github.com/cregis-dev/apex/internal/usage"
)

// MaxBodyBytes is the inbound body size cap (spec.md §4.6).
const MaxBodyBytes = 10 << 20

// Pipeline bundles every shared, long-lived dependency the request path
// needs. One Pipeline is built at startup and reused across requests.
type Pipeline struct {
	Store     *config.Store
	Selector  *selector.Selector
	Registry  *adaptor.Registry
	Limiter   *ratelimit.Limiter
	Estimator *tokencount.Estimator
	Metrics   *metrics.Collector
	Audit     *audit.Sink
	Logger    *zap.Logger
	Client    *http.Client
}

// Handle runs the full pipeline for one inbound request, writing the
// final status, headers, and body (streamed live for text/event-stream
// upstream responses, buffered otherwise) directly to w.
func (p *Pipeline) Handle(ctx context.Context, route adaptor.Route, path string, headers http.Header, rawBody io.Reader, w http.ResponseWriter) {
	body, err := readCappedBody(rawBody)
	if err != nil {
		p.writeError(w, route, 400, err.Error())
		return
	}

	model := parseModel(body)

	snap := p.Store.Get()
	result := auth.Resolve(snap, headers)
	if !result.Authenticated {
		p.writeError(w, route, 401, "Invalid API Key")
		return
	}

	if result.Team != nil {
		if perr := auth.CheckAllowedModel(result.Team.Team, model); perr != nil {
			p.writeError(w, route, perr.Status, perr.Message)
			return
		}
		if perr := auth.CheckRateLimit(p.Limiter, result.Team.Team, p.Estimator.Estimate(model, string(body))); perr != nil {
			p.writeError(w, route, perr.Status, perr.Message)
			return
		}
	}

	routerName, candidates, perr := auth.ResolveRouter(p.Selector, snap, result.Team, model)
	if perr != nil {
		p.writeError(w, route, perr.Status, perr.Message)
		return
	}

	p.tryCandidates(ctx, route, path, headers, body, snap, routerName, candidates, w)
}

// primaryCount is the number of candidates selector.Select attributes to
// the matched rule itself, before any fallback_channels entries; the
// selector always returns at most one primary channel (spec.md §4.1).
const primaryCount = 1

// sendResult carries one upstream attempt's outcome back to the retry
// loop. When streamed is true the response has already been written to
// the client and must not be retried or written again.
type sendResult struct {
	status      int
	contentType string
	body        []byte
	streamed    bool
}

func (p *Pipeline) tryCandidates(ctx context.Context, route adaptor.Route, path string, headers http.Header, body []byte, snap *config.Snapshot, routerName string, candidates []string, w http.ResponseWriter) {
	global := snap.Doc.Global
	var lastBody []byte
	var lastStatus int

	for i, channelName := range candidates {
		if i >= primaryCount {
			p.Metrics.RecordFallback(routerName, channelName)
		}

		channel, ok := snap.Channels[channelName]
		if !ok {
			continue
		}
		ad, ok := p.Registry.For(channel.ProviderType)
		if !ok {
			continue
		}

		result, transportErr := p.attemptChannel(ctx, route, routerName, path, headers, body, channel, ad, global, w)
		if result.streamed {
			// The response status/headers/body have already been
			// written live to w (or partially so, on a mid-stream
			// error) — there is no way to retry another candidate
			// without corrupting the client's HTTP response.
			if transportErr != nil {
				p.Logger.Warn("upstream stream relay error", zap.String("channel", channelName), zap.Error(transportErr))
				return
			}
			p.Metrics.RecordRequest(string(route), routerName)
			return
		}
		if transportErr == nil && result.status >= 200 && result.status < 300 {
			p.Metrics.RecordRequest(string(route), routerName)
			p.accountUsage(routerName, channelName, parseModel(body), result.contentType, result.body)
			p.writeBuffered(w, result.status, result.contentType, result.body)
			return
		}

		lastBody = result.body
		lastStatus = result.status
		if transportErr != nil {
			p.Logger.Warn("upstream transport error", zap.String("channel", channelName), zap.Error(transportErr))
		}
	}

	p.Metrics.RecordError(string(route), routerName)
	p.finalFailure(w, route, lastStatus, lastBody, body)
}

// attemptChannel runs the retry loop against one channel: adapter prep,
// send, and retry-on-status/backoff per spec.md §4.6.
func (p *Pipeline) attemptChannel(ctx context.Context, route adaptor.Route, routerName, path string, headers http.Header, body []byte, channel config.Channel, ad adaptor.Adaptor, global config.Global, w http.ResponseWriter) (result sendResult, transportErr error) {
	maxAttempts := global.Retries.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryOn := make(map[int]bool, len(global.Retries.RetryOnStatus))
	for _, s := range global.Retries.RetryOnStatus {
		retryOn[s] = true
	}

	req := adaptor.Request{Route: route, Channel: channel, Path: path, Headers: headers, Body: body}
	timeouts := resolveTimeouts(channel, global.Timeouts)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, transportErr = p.sendOnce(ctx, req, routerName, channel, ad, timeouts, w)
		if transportErr == nil && result.status >= 200 && result.status < 300 {
			return result, nil
		}
		if result.streamed {
			return result, transportErr
		}
		retryable := transportErr != nil || retryOn[result.status]
		if !retryable || attempt == maxAttempts {
			break
		}
		sleepBackoff(ctx, global.Retries.BackoffMS)
	}
	return result, transportErr
}

func (p *Pipeline) sendOnce(ctx context.Context, req adaptor.Request, routerName string, channel config.Channel, ad adaptor.Adaptor, timeouts resolvedTimeouts, w http.ResponseWriter) (result sendResult, transportErr error) {
	upstreamURL, err := ad.MapPath(req)
	if err != nil {
		return sendResult{}, err
	}
	transformedBody, err := ad.TransformBody(req)
	if err != nil {
		return sendResult{}, err
	}

	headers := adaptor.ShapeUpstreamHeaders(req.Headers, channel.ExtraHeaders)
	ad.ApplyAuthHeaders(req, headers)

	reqCtx, cancel := context.WithCancel(withDialTimeout(ctx, timeouts.Connect))
	defer cancel()
	headerTimer := time.AfterFunc(timeouts.Request, cancel)

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, upstreamURL, bytes.NewReader(transformedBody))
	if err != nil {
		headerTimer.Stop()
		return sendResult{}, err
	}
	httpReq.Header = headers
	if q := ad.MapQuery(req); q != nil {
		httpReq.URL.RawQuery = q.Encode()
	}

	start := time.Now()
	resp, err := p.Client.Do(httpReq)
	headerTimer.Stop()
	if err != nil {
		return sendResult{}, err
	}
	defer resp.Body.Close()
	p.Metrics.RecordUpstreamLatency(string(req.Route), routerName, channel.Name, float64(time.Since(start).Milliseconds()))

	// bodyTimer re-arms the same cancel for the body/stream-read phase,
	// bounding it by response_ms independently of the header wait above;
	// canceling reqCtx mid-read errors out any in-flight resp.Body.Read.
	bodyTimer := time.AfterFunc(timeouts.Response, cancel)
	defer bodyTimer.Stop()

	isStream := resp.StatusCode >= 200 && resp.StatusCode < 300 &&
		strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")
	if isStream {
		if err := p.relayStream(req, routerName, channel.Name, ad, resp, w); err != nil {
			return sendResult{status: resp.StatusCode, streamed: true}, err
		}
		return sendResult{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), streamed: true}, nil
	}

	upstreamBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return sendResult{}, err
	}
	// A non-2xx body is kept as the upstream sent it: it only reaches the
	// client through finalFailure, which applies the inbound-route
	// conversion itself.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return sendResult{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: upstreamBody}, nil
	}

	translatedContentType, translatedBody, err := ad.HandleResponse(req, resp.StatusCode, resp.Header, upstreamBody)
	if err != nil {
		return sendResult{status: resp.StatusCode, body: upstreamBody}, err
	}
	return sendResult{status: resp.StatusCode, contentType: translatedContentType, body: translatedBody}, nil
}

// relayStream copies resp.Body to w chunk by chunk as it arrives,
// running each raw chunk through the adapter's StreamTransform (nil
// means passthrough) and, independently, through a usage.SSEScanner so
// token accounting never delays forwarding a chunk (spec.md §5, §9).
func (p *Pipeline) relayStream(req adaptor.Request, routerName, channelName string, ad adaptor.Adaptor, resp *http.Response, w http.ResponseWriter) error {
	header := w.Header()
	for k, vv := range adaptor.ForwardableResponseHeaders(resp.Header) {
		for _, v := range vv {
			header.Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	flusher, canFlush := w.(http.Flusher)

	transform := ad.StreamTransform(req)
	var scanner usage.SSEScanner

	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			scanner.Feed(chunk)

			out := chunk
			if transform != nil {
				out = transform(chunk)
			}
			if len(out) > 0 {
				if _, werr := w.Write(out); werr != nil {
					return werr
				}
				if canFlush {
					flusher.Flush()
				}
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return readErr
		}
	}

	usage.Flush(p.Metrics, p.Audit, p.Logger, routerName, channelName, parseModel(req.Body), scanner.Counts)
	return nil
}

// resolvedTimeouts bounds one upstream attempt's dial, header-wait, and
// body/stream-read phases (spec.md §3, §5).
type resolvedTimeouts struct {
	Connect  time.Duration
	Request  time.Duration
	Response time.Duration
}

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultRequestTimeout  = 30 * time.Second
	defaultResponseTimeout = 60 * time.Second
)

// resolveTimeouts applies channel.Timeouts overrides over global
// defaults, falling back to package defaults when neither sets a field
// (spec.md §3's "default timeouts ... if absent, globals apply").
func resolveTimeouts(channel config.Channel, global config.GlobalTimeouts) resolvedTimeouts {
	t := resolvedTimeouts{
		Connect:  defaultConnectTimeout,
		Request:  defaultRequestTimeout,
		Response: defaultResponseTimeout,
	}
	if global.ConnectMS > 0 {
		t.Connect = time.Duration(global.ConnectMS) * time.Millisecond
	}
	if global.RequestMS > 0 {
		t.Request = time.Duration(global.RequestMS) * time.Millisecond
	}
	if global.ResponseMS > 0 {
		t.Response = time.Duration(global.ResponseMS) * time.Millisecond
	}

	if channel.Timeouts == nil {
		return t
	}
	if channel.Timeouts.ConnectMS > 0 {
		t.Connect = time.Duration(channel.Timeouts.ConnectMS) * time.Millisecond
	}
	if channel.Timeouts.RequestMS > 0 {
		t.Request = time.Duration(channel.Timeouts.RequestMS) * time.Millisecond
	}
	if channel.Timeouts.ResponseMS > 0 {
		t.Response = time.Duration(channel.Timeouts.ResponseMS) * time.Millisecond
	}
	return t
}

func sleepBackoff(ctx context.Context, backoffMS int) {
	if backoffMS <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(backoffMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// finalFailure implements spec.md §4.6's "all channels failed" and
// inbound-route error body conversion, passing the original inbound
// body's stop sequences through to the Anthropic conversion so a
// synthesized failure response still honors SPEC_FULL.md §5.3's
// stop_sequence pass-through.
func (p *Pipeline) finalFailure(w http.ResponseWriter, route adaptor.Route, lastStatus int, lastBody []byte, inboundBody []byte) {
	if route == adaptor.RouteAnthropic && len(lastBody) > 0 {
		stopSequences := protocol.ExtractStopSequences(inboundBody)
		if converted, err := protocol.OpenAIToAnthropicResponse(lastBody, stopSequences); err == nil {
			p.writeBuffered(w, 502, "application/json", converted)
			return
		}
	}
	p.writeError(w, route, 502, "all channels failed")
}

func (p *Pipeline) writeError(w http.ResponseWriter, route adaptor.Route, status int, message string) {
	body, _ := json.Marshal(errorBody(route, message))
	p.writeBuffered(w, status, "application/json", body)
}

func (p *Pipeline) writeBuffered(w http.ResponseWriter, status int, contentType string, body []byte) {
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (p *Pipeline) accountUsage(router, channel, model, contentType string, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			p.Logger.Error("usage accounting panicked", zap.Any("recover", r))
		}
	}()

	var counts usage.Counts
	counts.Extract(body)
	usage.Flush(p.Metrics, p.Audit, p.Logger, router, channel, model, counts)
}

func parseModel(body []byte) string {
	var decoded struct {
		Model string `json:"model"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Model == "" {
		return "default"
	}
	return decoded.Model
}

func readCappedBody(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, MaxBodyBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.Wrap(err, "read request body")
	}
	if len(data) > MaxBodyBytes {
		return nil, errors.New("request body exceeds 10 MiB limit")
	}
	return data, nil
}
