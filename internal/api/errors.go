package api

import (
	"errors"
	"net/http"

	"github.com/dunamismax/pixeldesk/internal/domain"
	"github.com/dunamismax/pixeldesk/internal/pipeline"
)

var errMissingImage = errors.New(`multipart field "image" is required`)

// renderStatus maps a render or settings error to an HTTP status.
func renderStatus(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pipeline.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, pipeline.ErrDrawingSurfaceUnavailable):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, pipeline.ErrInvalidDimensions),
		errors.Is(err, pipeline.ErrInvalidRotation),
		errors.Is(err, pipeline.ErrInvalidWatermark),
		errors.Is(err, pipeline.ErrInvalidFilter),
		errors.Is(err, domain.ErrExplicitZeroSize),
		errors.Is(err, errMissingImage):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrInvalidSource):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeRenderError(w http.ResponseWriter, op string, err error) {
	status := renderStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Printf("%s failed err=%v", op, err)
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, err.Error())
}
