package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"streetsketch/core-go/internal/document"
	"streetsketch/core-go/internal/naming"
	"streetsketch/core-go/internal/session"
)

const (
	maxDocumentBytes = 8 << 20
	defaultQRSize    = 256
)

type createSessionRequest struct {
	Title string `json:"title,omitempty"`
	// Map is a remote document URL, the ?map= parameter of the editor.
	Map      string `json:"map,omitempty"`
	Fragment string `json:"fragment,omitempty"`
}

type sessionResponse struct {
	ID         string        `json:"id"`
	LoadedFrom string        `json:"loadedFrom,omitempty"`
	State      session.State `json:"state"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSONStrict(r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}

	title := ""
	if req.Title != "" {
		t, err := naming.NormalizeTitle(req.Title)
		if err != nil {
			h.writeDomainError(w, err)
			return
		}
		title = t
	}

	id := uuid.NewString()
	log := h.log.With().Str("session_id", id).Logger()

	// A nil *library.Library must not become a non-nil interface.
	var lib session.Library
	if h.lib != nil {
		lib = h.lib
	}
	c := session.New(log, session.Options{
		Canvas:      clientCanvas{},
		Library:     lib,
		Metrics:     h.metrics,
		Title:       title,
		SaveTimeout: h.opts.SaveTimeout,
		Context:     context.Background(),
	})
	rn := session.NewRunner(log, c, h.fetcher, lib)

	if err := h.sessions.add(id, rn); err != nil {
		rn.Close()
		h.writeError(w, http.StatusServiceUnavailable, "session_limit", err.Error(), map[string]any{"max": h.opts.MaxSessions})
		return
	}
	h.metrics.SessionOpened()

	source, err := rn.Startup(r.Context(), session.StartupOptions{MapURL: req.Map, Fragment: req.Fragment})
	if source == "" {
		if err != nil {
			log.Info().Err(err).Msg("session started without a document")
		}
		_ = rn.Do(func(c *session.Coordinator) error {
			c.StartAt(h.opts.DefaultView)
			return nil
		})
	}

	log.Info().Str("loaded_from", source).Msg("session created")
	h.writeJSON(w, http.StatusCreated, sessionResponse{ID: id, LoadedFrom: source, State: rn.Snapshot()})
}

// runner looks up the {id} session, writing a 404 when it is gone.
func (h *Handler) runner(w http.ResponseWriter, r *http.Request) (*session.Runner, bool) {
	id := chi.URLParam(r, "id")
	rn, ok := h.sessions.get(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "session not found", map[string]any{"id": id})
		return nil, false
	}
	return rn, true
}

// mutate runs fn against the session and answers with the new state.
func (h *Handler) mutate(w http.ResponseWriter, rn *session.Runner, fn func(c *session.Coordinator) error) {
	if err := rn.Do(fn); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rn.Snapshot())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, rn.Snapshot())
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rn, ok := h.sessions.remove(id)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "session not found", map[string]any{"id": id})
		return
	}
	rn.Close()
	h.metrics.SessionClosed()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleToggleLayer(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	layer := chi.URLParam(r, "layer")
	h.mutate(w, rn, func(c *session.Coordinator) error { return c.ClickToolbar(layer) })
}

func (h *Handler) handleToggleVisibility(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	layer := chi.URLParam(r, "layer")
	h.mutate(w, rn, func(c *session.Coordinator) error { return c.ToggleLegend(layer) })
}

func (h *Handler) handleDeleteFeature(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	layer, feature := chi.URLParam(r, "layer"), chi.URLParam(r, "feature")
	h.mutate(w, rn, func(c *session.Coordinator) error { return c.RemoveFeature(layer, feature) })
}

type labelRequest struct {
	Label string `json:"label"`
}

func (h *Handler) handleSetLabel(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var req labelRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	layer, feature := chi.URLParam(r, "layer"), chi.URLParam(r, "feature")
	h.mutate(w, rn, func(c *session.Coordinator) error { return c.SetLabel(layer, feature, req.Label) })
}

type geometryRequest struct {
	Coordinates json.RawMessage `json:"coordinates"`
}

func (h *Handler) handleReplaceGeometry(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var req geometryRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	layer, feature := chi.URLParam(r, "layer"), chi.URLParam(r, "feature")
	h.mutate(w, rn, func(c *session.Coordinator) error {
		return c.ReplaceGeometry(layer, feature, req.Coordinates)
	})
}

func (h *Handler) handleClick(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var req session.Click
	if !h.decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, rn, func(c *session.Coordinator) error { return c.Click(req.Lat, req.Lng) })
}

func (h *Handler) handleDraw(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var req session.Drawing
	if !h.decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, rn, func(c *session.Coordinator) error { return c.Draw(req.Coordinates) })
}

func (h *Handler) handleEscape(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	h.mutate(w, rn, func(c *session.Coordinator) error { return c.Escape() })
}

type zoomRequest struct {
	Zoom int `json:"zoom"`
}

func (h *Handler) handleZoom(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var req zoomRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, rn, func(c *session.Coordinator) error { return c.SetZoom(req.Zoom) })
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var req document.View
	if !h.decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, rn, func(c *session.Coordinator) error { return c.MoveView(req) })
}

type panelRequest struct {
	Panel session.Panel `json:"panel"`
}

func (h *Handler) handlePanel(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var req panelRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	switch req.Panel {
	case session.PanelNone, session.PanelSettings, session.PanelMapManager, session.PanelSharing, session.PanelHelp:
	default:
		h.writeError(w, http.StatusBadRequest, "validation_failed", "unknown panel", map[string]any{"panel": req.Panel})
		return
	}
	h.mutate(w, rn, func(c *session.Coordinator) error { return c.OpenPanel(req.Panel) })
}

func (h *Handler) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var req document.Settings
	if !h.decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, rn, func(c *session.Coordinator) error { return c.SaveSettings(req) })
}

type titleRequest struct {
	Title string `json:"title"`
}

func (h *Handler) handleNewMap(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var req titleRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	h.mutate(w, rn, func(c *session.Coordinator) error { return c.NewMap(req.Title) })
}

func (h *Handler) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var (
		data  []byte
		title string
	)
	err := rn.Do(func(c *session.Coordinator) error {
		var err error
		data, err = c.Document()
		title = c.Settings().Title
		return err
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", naming.FileName(title, ".json")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "too_large", "document too large", map[string]any{"limit": tooLarge.Limit})
			return
		}
		h.writeError(w, http.StatusBadRequest, "validation_failed", "could not read document", map[string]any{"error": err.Error()})
		return
	}
	if err := rn.LoadFile(r.Context(), data); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rn.Snapshot())
}

type loadRemoteRequest struct {
	URL string `json:"url"`
}

func (h *Handler) handleLoadRemote(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var req loadRemoteRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.URL == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "url is required", nil)
		return
	}
	if err := rn.LoadRemote(r.Context(), req.URL); err != nil {
		h.writeRemoteError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rn.Snapshot())
}

func (h *Handler) handleOpenMap(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var req titleRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := rn.OpenMap(r.Context(), req.Title); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rn.Snapshot())
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var (
		data  []byte
		title string
	)
	err := rn.Do(func(c *session.Coordinator) error {
		var err error
		data, err = c.Export().MarshalJSON()
		title = c.Settings().Title
		return err
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", naming.FileName(title, ".geojson")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type shareResponse struct {
	Fragment string `json:"fragment"`
	URL      string `json:"url"`
	Embed    string `json:"embed"`
}

// shareLink builds the share URL for the session's current map.
func (h *Handler) shareLink(rn *session.Runner) (fragment, title string, err error) {
	err = rn.Do(func(c *session.Coordinator) error {
		var err error
		fragment, err = c.ShareLink()
		title = c.Settings().Title
		return err
	})
	return fragment, title, err
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	width, err := intParam(q.Get("width"), 800)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid width", map[string]any{"error": err.Error()})
		return
	}
	height, err := intParam(q.Get("height"), 600)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid height", map[string]any{"error": err.Error()})
		return
	}
	hideToolbar := q.Get("hide_toolbar") == "true"

	fragment, title, err := h.shareLink(rn)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, shareResponse{
		Fragment: fragment,
		URL:      h.opts.ShareOrigin + "#" + fragment,
		Embed:    document.EmbedHTML(h.opts.ShareOrigin, fragment, width, height, hideToolbar, title),
	})
}

type loadShareRequest struct {
	Fragment string `json:"fragment"`
}

func (h *Handler) handleLoadShare(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var req loadShareRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if err := rn.LoadShareLink(r.Context(), req.Fragment); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rn.Snapshot())
}

func (h *Handler) handleShareQR(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	size, err := intParam(r.URL.Query().Get("size"), defaultQRSize)
	if err != nil || size < 64 || size > 1024 {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "size must be between 64 and 1024", nil)
		return
	}

	fragment, _, err := h.shareLink(rn)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	png, err := qrcode.Encode(h.opts.ShareOrigin+"#"+fragment, qrcode.Low, size)
	if err != nil {
		h.writeError(w, http.StatusUnprocessableEntity, "share_link_too_long", "map is too large for a QR code", map[string]any{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) handleListErrors(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	var problems []session.Problem
	_ = rn.Do(func(c *session.Coordinator) error {
		problems = c.Problems()
		return nil
	})
	if problems == nil {
		problems = []session.Problem{}
	}
	h.writeJSON(w, http.StatusOK, problems)
}

func (h *Handler) handleClearErrors(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.runner(w, r)
	if !ok {
		return
	}
	_ = rn.Do(func(c *session.Coordinator) error {
		c.ClearProblems()
		return nil
	})
	w.WriteHeader(http.StatusNoContent)
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
