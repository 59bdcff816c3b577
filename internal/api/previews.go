package api

import (
	"net/http"
	"strconv"

	"github.com/dunamismax/pixeldesk/internal/domain"
)

const headerPreviewRevision = "X-Preview-Revision"

func (s *Server) handleCreatePreview(w http.ResponseWriter, r *http.Request) {
	src, err := s.readUpload(w, r)
	if err != nil {
		s.writeRenderError(w, "create preview", err)
		return
	}

	session := s.previews.Create(src)
	s.logger.Printf("preview created preview_id=%s width=%d height=%d", session.ID(), src.Width(), src.Height())
	writeJSON(w, http.StatusCreated, map[string]any{
		"preview_id":   session.ID(),
		"revision":     session.Snapshot().Revision,
		"width":        src.Width(),
		"height":       src.Height(),
		"settings_url": "/v1/previews/" + session.ID() + "/settings",
	})
}

// handleUpdatePreview replaces the session's settings. Invalid settings are
// rejected here so the debounced render only sees settings that can render.
func (s *Server) handleUpdatePreview(w http.ResponseWriter, r *http.Request) {
	previewID := r.PathValue("id")
	session, ok := s.previews.Get(previewID)
	if !ok {
		writeError(w, http.StatusNotFound, "preview not found")
		return
	}

	var settings domain.RenderSettings
	if err := decodeJSON(r, &settings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, _, err := s.renderer.StepConfig(settings, session.Source().Format()); err != nil {
		s.writeRenderError(w, "update preview", err)
		return
	}

	revision, ok := s.previews.Update(previewID, settings)
	if !ok {
		writeError(w, http.StatusNotFound, "preview not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"preview_id": previewID,
		"revision":   revision,
	})
}

func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	session, ok := s.previews.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "preview not found")
		return
	}

	snap := session.Snapshot()
	w.Header().Set("X-Preview-Pending", strconv.FormatBool(snap.Pending))
	switch {
	case snap.RenderedRevision == 0:
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    "preview not rendered yet",
			"revision": snap.Revision,
		})
	case snap.Err != nil:
		w.Header().Set(headerPreviewRevision, strconv.FormatUint(snap.RenderedRevision, 10))
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    snap.Err.Error(),
			"revision": snap.RenderedRevision,
		})
	default:
		w.Header().Set(headerPreviewRevision, strconv.FormatUint(snap.RenderedRevision, 10))
		writeImage(w, snap.Result, http.StatusOK)
	}
}

func (s *Server) handleDeletePreview(w http.ResponseWriter, r *http.Request) {
	if !s.previews.Delete(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "preview not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
