package api

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/dunamismax/pixeldesk/internal/domain"
	"github.com/dunamismax/pixeldesk/internal/pipeline"
	"go.opentelemetry.io/otel/attribute"
)

const multipartMemory = 8 << 20

// handleRender renders the uploaded image once and returns the encoded
// bytes as an attachment.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	src, err := s.readUpload(w, r)
	if err != nil {
		s.writeRenderError(w, "render", err)
		return
	}

	var settings domain.RenderSettings
	if raw := strings.TrimSpace(r.FormValue("settings")); raw != "" {
		if err := decodeJSONReader(strings.NewReader(raw), &settings); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	cfg, wm, err := s.renderer.StepConfig(settings, src.Format())
	if err != nil {
		s.writeRenderError(w, "render", err)
		return
	}

	_, span := s.tracer.Start(r.Context(), "pipeline.render")
	span.SetAttributes(
		attribute.String("render.format", string(cfg.Format)),
		attribute.Int("render.source_width", src.Width()),
		attribute.Int("render.source_height", src.Height()),
	)
	out, err := s.renderer.Render(src, cfg, wm)
	if err != nil {
		span.RecordError(err)
		span.End()
		s.writeRenderError(w, "render", err)
		return
	}
	span.End()

	s.metrics.renderOutputs.WithLabelValues(string(out.Format)).Inc()
	writeImage(w, out, http.StatusOK)
}

// readUpload parses the multipart body and decodes its "image" part.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*pipeline.SourceRaster, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if renderStatus(err) == http.StatusRequestEntityTooLarge {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errMissingImage, err)
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		return nil, errMissingImage
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	return s.renderer.Decode(file)
}

func writeImage(w http.ResponseWriter, out *pipeline.Rendered, status int) {
	w.Header().Set("Content-Type", out.MIME)
	w.Header().Set("Content-Length", strconv.Itoa(out.Size))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="processed-image.%s"`, out.Format.Extension()))
	w.Header().Set("X-Image-Width", strconv.Itoa(out.Width))
	w.Header().Set("X-Image-Height", strconv.Itoa(out.Height))
	w.WriteHeader(status)
	_, _ = w.Write(out.Data)
}
