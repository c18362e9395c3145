package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/media"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

// MediaHandler serves attachment blobs for backends without presigned URLs.
type MediaHandler struct {
	media  *media.Library
	logger logger.Logger
}

func NewMediaHandler(lib *media.Library, log logger.Logger) *MediaHandler {
	return &MediaHandler{media: lib, logger: log.Named("http")}
}

// Show streams an attachment or, with ?conversion=thumb, its thumbnail. Only
// links signed by the media library are served.
func (h *MediaHandler) Show(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		handleError(c, h.logger, fmt.Errorf("media %q: %w", c.Param("id"), apperr.ErrNotFound))
		return
	}

	conversion := c.Query(media.ParamConversion)
	if err := h.media.Verify(id, conversion, c.Query(media.ParamExpires), c.Query(media.ParamSignature)); err != nil {
		handleError(c, h.logger, err)
		return
	}

	ctx := c.Request.Context()
	m, err := h.media.Get(ctx, id)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	body, err := h.media.Open(ctx, m, conversion)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	defer body.Close()

	contentType := m.MimeType
	if conversion == models.ConversionThumb {
		contentType = "image/jpeg"
	}
	c.Header("Cache-Control", "private, max-age=300")
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", m.FileName))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, body); err != nil {
		logger.FromContext(ctx, h.logger).Warn("Failed to stream media",
			logger.Int64("mediaId", m.ID),
			logger.Error(err),
		)
	}
}
