package pipeline

import (
	"context"
	"net"
	"net/http"
	"time"
)

type dialTimeoutKey struct{}

// withDialTimeout attaches a per-request connect (dial) deadline to ctx,
// read back by the DialContext closure NewHTTPClient installs. The
// shared transport is built once at startup and pooled across requests,
// so a channel's connect_ms override (spec.md §5) cannot be baked into
// the dialer itself; it travels on the context instead.
func withDialTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, dialTimeoutKey{}, d)
}

// NewHTTPClient builds the shared outbound client: a pooled transport
// with connection reuse (spec.md §5's pool_idle_timeout 90s, tcp_nodelay
// on), and no client-wide timeout — per-request deadlines are applied
// via context instead so streaming responses are not cut off. The dial
// step additionally honors a per-request connect_ms override carried on
// the request context by withDialTimeout.
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if d, ok := ctx.Value(dialTimeoutKey{}).(time.Duration); ok && d > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
			}
			return dialer.DialContext(ctx, network, addr)
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Transport: transport}
}
