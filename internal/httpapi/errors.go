package httpapi

import (
	"context"
	"errors"
	"net/http"

	"streetsketch/core-go/internal/document"
	"streetsketch/core-go/internal/fetch"
	"streetsketch/core-go/internal/layers"
	"streetsketch/core-go/internal/library"
	"streetsketch/core-go/internal/naming"
	"streetsketch/core-go/internal/session"
)

// writeDomainError maps session, document and library errors onto the
// error envelope.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var de *document.Error
	switch {
	case errors.Is(err, library.ErrMapNotFound):
		h.writeError(w, http.StatusNotFound, "map_not_found", "map not found", nil)
	case errors.Is(err, session.ErrUnknownLayer):
		h.writeError(w, http.StatusNotFound, "unknown_layer", err.Error(), nil)
	case errors.Is(err, layers.ErrFeatureNotFound):
		h.writeError(w, http.StatusNotFound, "feature_not_found", err.Error(), nil)
	case errors.Is(err, session.ErrReadOnly):
		h.writeError(w, http.StatusForbidden, "read_only", err.Error(), nil)
	case errors.Is(err, session.ErrLayerInactive):
		h.writeError(w, http.StatusConflict, "layer_inactive", err.Error(), nil)
	case errors.Is(err, session.ErrDuplicateTitle):
		h.writeError(w, http.StatusConflict, "duplicate_title", err.Error(), nil)
	case errors.Is(err, naming.ErrEmptyTitle),
		errors.Is(err, naming.ErrTitleTooLong),
		errors.Is(err, naming.ErrInvalidTitle):
		h.writeError(w, http.StatusBadRequest, "invalid_title", err.Error(), nil)
	case errors.Is(err, layers.ErrNotLabelled):
		h.writeError(w, http.StatusBadRequest, "not_labelled", err.Error(), nil)
	case errors.Is(err, fetch.ErrBlockedAddress):
		h.writeError(w, http.StatusForbidden, "remote_blocked", "map url points at a disallowed address", nil)
	case errors.Is(err, fetch.ErrUnsupportedURL):
		h.writeError(w, http.StatusBadRequest, "invalid_url", err.Error(), nil)
	case errors.As(err, &de):
		h.writeDocumentError(w, de, true)
	case errors.Is(err, layers.ErrGeometryMalformed):
		h.writeError(w, http.StatusUnprocessableEntity, "geometry_malformed", err.Error(), nil)
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, http.StatusGatewayTimeout, "timeout", "request timed out", nil)
	case errors.Is(err, context.Canceled):
		h.writeError(w, http.StatusServiceUnavailable, "cancelled", "request cancelled", nil)
	default:
		h.log.Error().Err(err).Msg("session operation failed")
		h.writeError(w, http.StatusInternalServerError, "internal_error", "operation failed", nil)
	}
}

// writeRemoteError is writeDomainError for remote loads. The fetched body
// is never echoed; it stays in the session's error list.
func (h *Handler) writeRemoteError(w http.ResponseWriter, err error) {
	var de *document.Error
	if errors.As(err, &de) && !errors.Is(err, fetch.ErrBlockedAddress) && !errors.Is(err, fetch.ErrUnsupportedURL) {
		h.writeDocumentError(w, de, false)
		return
	}
	h.writeDomainError(w, err)
}

func (h *Handler) writeDocumentError(w http.ResponseWriter, de *document.Error, withRaw bool) {
	details := map[string]any{"kind": string(de.Kind)}
	if withRaw && len(de.Raw) > 0 {
		details["raw"] = string(de.Raw)
	}

	switch {
	case de.Prefix == document.PrefixNetwork:
		h.writeError(w, http.StatusBadGateway, "remote_unavailable", de.Error(), details)
	case de.Prefix == document.PrefixStorage:
		h.writeError(w, http.StatusServiceUnavailable, "storage_unavailable", de.Error(), details)
	case de.Kind == document.KindGeometryMalformed:
		h.writeError(w, http.StatusUnprocessableEntity, "geometry_malformed", de.Error(), details)
	default:
		h.writeError(w, http.StatusUnprocessableEntity, "document_invalid", de.Error(), details)
	}
}
