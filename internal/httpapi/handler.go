package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"streetsketch/core-go/internal/db"
	"streetsketch/core-go/internal/document"
	"streetsketch/core-go/internal/library"
	"streetsketch/core-go/internal/metrics"
	"streetsketch/core-go/internal/session"
)

type Options struct {
	Metrics *metrics.Metrics
	Library *library.Library
	Fetcher session.Fetcher
	// ShareOrigin is the editor URL share links and embeds point at.
	ShareOrigin string
	SaveTimeout time.Duration
	MaxSessions int
	DefaultView document.View
}

type Handler struct {
	log      zerolog.Logger
	pool     *db.Pool
	metrics  *metrics.Metrics
	lib      *library.Library
	fetcher  session.Fetcher
	opts     Options
	sessions *sessionStore
}

func NewHandler(log zerolog.Logger, pool *db.Pool, opts Options) *Handler {
	return &Handler{
		log:      log,
		pool:     pool,
		metrics:  opts.Metrics,
		lib:      opts.Library,
		fetcher:  opts.Fetcher,
		opts:     opts,
		sessions: newSessionStore(opts.MaxSessions),
	}
}

// Close ends every open session.
func (h *Handler) Close() {
	for _, rn := range h.sessions.drain() {
		if err := closeRunner(rn); err != nil {
			h.log.Error().Err(err).Msg("session close failed")
		}
		h.metrics.SessionClosed()
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Handle("/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", h.handleCreateSession)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", h.handleGetSession)
					r.Delete("/", h.handleDeleteSession)

					r.Route("/layers/{layer}", func(r chi.Router) {
						r.Post("/toggle", h.handleToggleLayer)
						r.Post("/visibility", h.handleToggleVisibility)
						r.Delete("/features/{feature}", h.handleDeleteFeature)
						r.Put("/features/{feature}/label", h.handleSetLabel)
						r.Put("/features/{feature}/geometry", h.handleReplaceGeometry)
					})

					r.Route("/events", func(r chi.Router) {
						r.Post("/click", h.handleClick)
						r.Post("/draw", h.handleDraw)
						r.Post("/escape", h.handleEscape)
						r.Post("/zoom", h.handleZoom)
						r.Post("/view", h.handleView)
						r.Post("/panel", h.handlePanel)
					})

					r.Put("/settings", h.handleSaveSettings)
					r.Post("/maps", h.handleNewMap)
					r.Get("/document", h.handleDownloadDocument)
					r.Post("/document", h.handleUploadDocument)
					r.Post("/load-remote", h.handleLoadRemote)
					r.Post("/open", h.handleOpenMap)
					r.Get("/export", h.handleExport)
					r.Get("/share", h.handleShare)
					r.Post("/share", h.handleLoadShare)
					r.Get("/share/qr.png", h.handleShareQR)
					r.Get("/errors", h.handleListErrors)
					r.Delete("/errors", h.handleClearErrors)
				})
			})

			r.Route("/maps", func(r chi.Router) {
				r.Get("/", h.handleListMaps)
				r.Route("/{title}", func(r chi.Router) {
					r.Delete("/", h.handleDeleteMap)
					r.Post("/copy", h.handleCopyMap)
				})
			})
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		h.metrics.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))

		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

// decodeBody is decodeJSONStrict that writes the 400 itself.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSONStrict(r, dst); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return false
	}
	return true
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.pool == nil {
		// In-memory library: nothing external to wait on.
		h.writeJSON(w, http.StatusOK, map[string]any{"ready": true, "storage": "memory"})
		return
	}

	if err := h.pool.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true, "storage": "postgres"})
}

// ReapIdle closes sessions nobody has used for longer than idle and
// returns how many were removed. A session that fails to close is still
// removed; its failure is returned so the sweep backs off.
func (h *Handler) ReapIdle(ctx context.Context, idle time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	reaped := h.sessions.removeIdle(idle)
	var errs []error
	for id, rn := range reaped {
		h.metrics.SessionClosed()
		if err := closeRunner(rn); err != nil {
			h.log.Error().Err(err).Str("session_id", id).Msg("idle session close failed")
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		h.log.Info().Str("session_id", id).Dur("idle", idle).Msg("idle session closed")
	}
	return len(reaped), errors.Join(errs...)
}

// closeRunner closes rn, turning a panic into an error.
func closeRunner(rn *session.Runner) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("close panicked: %v", p)
		}
	}()
	rn.Close()
	return nil
}
