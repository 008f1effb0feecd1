// Package server exposes the search core over HTTP: ranked search, the
// file-content viewer, health probes, and the metrics endpoint.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/internal/querycache"
	"github.com/docscout/docscout/internal/syncer"
	"github.com/docscout/docscout/pkg/config"
	apperrors "github.com/docscout/docscout/pkg/errors"
	"github.com/docscout/docscout/pkg/health"
	"github.com/docscout/docscout/pkg/logger"
	"github.com/docscout/docscout/pkg/metrics"
	"github.com/docscout/docscout/pkg/middleware"
)

// Handler serves the HTTP API on top of the live index handle.
type Handler struct {
	handle *syncer.Handle
	cache  *querycache.Cache
	m      *metrics.Metrics
	log    *slog.Logger
}

// NewHandler wires the API handler. cache may be nil when Redis is absent.
func NewHandler(handle *syncer.Handle, cache *querycache.Cache, m *metrics.Metrics) *Handler {
	return &Handler{
		handle: handle,
		cache:  cache,
		m:      m,
		log:    logger.WithComponent("api"),
	}
}

// Search handles GET /api/search?q=&page=. Malformed input never errors: a
// missing query yields the empty result, an unparsable page defaults to 1.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	query := r.URL.Query().Get("q")
	page := 1
	if s := r.URL.Query().Get("page"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			page = n
		}
	}

	mode := index.Classify(query)
	h.m.SearchQueriesTotal.WithLabelValues(mode).Inc()

	var result index.Result
	cacheStatus := "bypass"
	if h.cache != nil && mode != index.ModeEmpty {
		var hit bool
		result, hit = h.cache.GetOrCompute(r.Context(), h.handle.Generation(), query, page, func() index.Result {
			return h.handle.Query(query, page)
		})
		if hit {
			cacheStatus = "hit"
			h.m.QueryCacheHitsTotal.Inc()
		} else {
			cacheStatus = "miss"
			h.m.QueryCacheMissTotal.Inc()
		}
	} else {
		result = h.handle.Query(query, page)
	}

	h.m.SearchLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	logger.FromContext(r.Context()).Debug("search served",
		"mode", mode, "total", result.Total, "page", result.Page, "cache", cacheStatus)
	writeJSON(w, http.StatusOK, result)
}

// fileResponse is the viewer payload for one indexed document.
type fileResponse struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// File handles GET /api/file?path= and serves the indexed copy of a document.
func (h *Handler) File(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		h.writeError(w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"query parameter 'path' is required"))
		return
	}
	doc, ok := h.handle.Index().Lookup(path)
	if !ok {
		h.writeError(w, apperrors.Newf(apperrors.ErrDocumentNotFound, http.StatusNotFound,
			"no indexed document at %q", path))
		return
	}
	writeJSON(w, http.StatusOK, fileResponse{
		Path:    doc.Path,
		Name:    doc.Name,
		Content: doc.Content,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err *apperrors.AppError) {
	writeJSON(w, err.StatusCode, map[string]string{"error": err.Message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// New builds the HTTP server with the full middleware chain and routes.
func New(
	cfg config.ServerConfig,
	handler *Handler,
	checker *health.Checker,
	m *metrics.Metrics,
	reg *prometheus.Registry,
) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", handler.Search)
	mux.HandleFunc("GET /api/file", handler.File)
	mux.HandleFunc("GET /health/live", health.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler(reg))

	chained := middleware.Chain(mux,
		middleware.RequestID(),
		middleware.Metrics(m),
		middleware.Timeout(cfg.RequestTimeout),
	)
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      chained,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
