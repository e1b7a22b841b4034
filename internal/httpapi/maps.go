package httpapi

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
)

type mapsResponse struct {
	Maps         []string `json:"maps"`
	LastSelected string   `json:"lastSelected,omitempty"`
}

func (h *Handler) ensureLibrary(w http.ResponseWriter) bool {
	if h.lib == nil {
		h.writeError(w, http.StatusServiceUnavailable, "library_unavailable", "map library not configured", nil)
		return false
	}
	return true
}

// titleParam returns the {title} path segment, percent-decoded.
func titleParam(r *http.Request) string {
	raw := chi.URLParam(r, "title")
	if t, err := url.PathUnescape(raw); err == nil {
		return t
	}
	return raw
}

func (h *Handler) handleListMaps(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLibrary(w) {
		return
	}
	maps, err := h.lib.Maps(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("list maps failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", "failed to list maps", nil)
		return
	}
	last, err := h.lib.LastSelected(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("read last selected map failed")
	}
	if maps == nil {
		maps = []string{}
	}
	h.writeJSON(w, http.StatusOK, mapsResponse{Maps: maps, LastSelected: last})
}

func (h *Handler) handleDeleteMap(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLibrary(w) {
		return
	}
	title := titleParam(r)
	if err := h.lib.DeleteMap(r.Context(), title); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.log.Info().Str("title", title).Msg("map deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCopyMap(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLibrary(w) {
		return
	}
	title := titleParam(r)
	copied, err := h.lib.CopyMap(r.Context(), title)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.log.Info().Str("title", title).Str("copy", copied).Msg("map copied")
	h.writeJSON(w, http.StatusCreated, map[string]any{"title": copied})
}
