package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/alikoudar/irobot-sub000/internal/config"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
)

const serviceName = "api"

// Services are the use cases the API drives.
type Services struct {
	Ingest    ports.DocumentIngestor
	Documents ports.DocumentReader
	Lifecycle ports.DocumentLifecycle
	Chat      ports.ChatService
	Cache     ports.CacheAdmin
	Settings  ports.SettingsProvider
}

// HTTPMetrics is the metrics surface the router needs.
type HTTPMetrics interface {
	Middleware(service string, next http.Handler) http.Handler
	Handler() http.Handler
	RecordRejected(service, reason string)
}

type Router struct {
	services Services
	metrics  HTTPMetrics
	now      func() time.Time

	apiKey           string
	rateLimitRPS     float64
	rateLimitBurst   int
	backpressureMax  int
	backpressureWait time.Duration
	maxUploadBytes   int64
}

type RouterOption func(*Router)

func WithMetrics(m HTTPMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

func NewRouter(cfg config.Config, services Services, opts ...RouterOption) *Router {
	rt := &Router{
		services:         services,
		now:              func() time.Time { return time.Now().UTC() },
		apiKey:           cfg.APIKey,
		rateLimitRPS:     cfg.APIRateLimitRPS,
		rateLimitBurst:   cfg.APIRateLimitBurst,
		backpressureMax:  cfg.APIBackpressureMaxInFlight,
		backpressureWait: time.Duration(cfg.APIBackpressureWaitMS) * time.Millisecond,
		maxUploadBytes:   cfg.MaxUploadBytes,
	}
	if rt.maxUploadBytes <= 0 {
		rt.maxUploadBytes = 50 << 20
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

var loadSpec = sync.OnceValues(func() (*openapi3.T, error) {
	return LoadOpenAPI(context.Background())
})

// Handler assembles the routes and the middleware chain. It panics if the
// embedded contract is invalid.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", rt.openAPIDocument)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/documents/{id}/reprocess", rt.reprocessDocument)

	mux.HandleFunc("POST /v1/chat/query", rt.chatQuery)

	mux.HandleFunc("GET /v1/cache/stats", rt.cacheStats)
	mux.HandleFunc("GET /v1/cache/stats/export", rt.exportCacheStats)
	mux.HandleFunc("POST /v1/cache/purge", rt.purgeCache)
	mux.HandleFunc("POST /v1/cache/entries/{id}/reset-ttl", rt.resetCacheEntryTTL)
	mux.HandleFunc("POST /v1/cache/invalidate/{documentID}", rt.invalidateDocumentCache)

	mux.HandleFunc("POST /v1/admin/settings/reload", rt.reloadSettings)

	spec, err := loadSpec()
	if err != nil {
		panic(err)
	}
	validated, err := requestValidationMiddleware(spec, mux)
	if err != nil {
		panic(err)
	}

	rejected := func(reason string) {
		if rt.metrics != nil {
			rt.metrics.RecordRejected(serviceName, reason)
		}
	}

	var handler http.Handler = validated
	handler = apiKeyMiddleware(handler, rt.apiKey)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst, rejected)
	handler = backpressureWithHook(handler, rt.backpressureMax, rt.backpressureWait, rejected)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) reloadSettings(w http.ResponseWriter, r *http.Request) {
	if err := rt.services.Settings.Reload(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("settings_reload_requested", "request_id", requestIDFromContext(r.Context()))
	writeJSON(w, http.StatusOK, rt.services.Settings.Current())
}
