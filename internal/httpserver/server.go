// Package httpserver mounts the gateway's gin engine: the OpenAI and
// Anthropic route aliases, the models stub, health check, and metrics
// endpoint (spec.md §6), following the teacher's gin.New() + explicit
// middleware stack bootstrap.
package httpserver

import (
	"net/http"

	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/cregis-dev/apex/internal/adaptor"
	"github.com/cregis-dev/apex/internal/auth"
	"github.com/cregis-dev/apex/internal/metrics"
	"github.com/cregis-dev/apex/internal/pipeline"
)

// New builds the gin engine, wiring every route in spec.md §6's external
// interface onto pl.
func New(pl *pipeline.Pipeline, collector *metrics.Collector, log *zap.Logger) *gin.Engine {
	engine := gin.New()
	engine.RedirectTrailingSlash = false
	engine.Use(gin.Recovery(), requestID())

	openaiHandler := relayHandler(pl, adaptor.RouteOpenAI)
	anthropicHandler := relayHandler(pl, adaptor.RouteAnthropic)

	for _, path := range []string{"/v1/chat/completions", "/chat/completions"} {
		engine.POST(path, openaiHandler)
	}
	for _, path := range []string{"/v1/completions", "/completions"} {
		engine.POST(path, openaiHandler)
	}
	for _, path := range []string{"/v1/embeddings", "/embeddings"} {
		engine.POST(path, openaiHandler)
	}
	for _, path := range []string{"/v1/messages", "/messages"} {
		engine.POST(path, anthropicHandler)
	}

	modelsStub := modelsHandler(pl)
	engine.GET("/v1/models", modelsStub)
	engine.GET("/models", modelsStub)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(collector.Handler()))

	return engine
}

// relayHandler adapts pl.Handle into a gin handler for one inbound
// route family. pl.Handle writes the response (status, headers, body)
// directly to c.Writer, streaming text/event-stream upstream responses
// chunk by chunk instead of buffering them.
func relayHandler(pl *pipeline.Pipeline, route adaptor.Route) gin.HandlerFunc {
	return func(c *gin.Context) {
		pl.Handle(c.Request.Context(), route, c.Request.URL.Path, c.Request.Header, c.Request.Body, c.Writer)
	}
}

// modelsHandler implements the GET /v1/models and /models stub: 200
// once global auth passes, 401 otherwise (spec.md §6, §4.5, §7).
func modelsHandler(pl *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := pl.Store.Get()
		result := auth.Resolve(snap, c.Request.Header)
		if !result.Authenticated {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"message": "Invalid API Key",
					"type":    "invalid_request_error",
					"param":   nil,
					"code":    nil,
				},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"object": "list", "data": []any{}})
	}
}
