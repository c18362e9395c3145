package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cieplik206/dokumenty/api/middleware"
	"github.com/cieplik206/dokumenty/internal/agent/collector"
	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/internal/models"
	"github.com/cieplik206/dokumenty/internal/service/intake"
	"github.com/cieplik206/dokumenty/internal/utils/validator"
	"github.com/cieplik206/dokumenty/pkg/converters"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

// NDJSONContentType is served by the streaming endpoint.
const NDJSONContentType = "application/x-ndjson"

type IntakeHandler struct {
	service   *intake.Service
	converter *converters.IntakeConverter
	uploads   *validator.UploadValidator
	logger    logger.Logger
}

// ItemsResponse wraps intake lists.
type ItemsResponse struct {
	Items []*converters.IntakeView `json:"items"`
}

// BulkDeleteRequest is the body of DELETE /intake.
type BulkDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

// StreamRequest is the body of POST /intake/stream.
type StreamRequest struct {
	Files []collector.FilePart `json:"files"`
}

func NewIntakeHandler(service *intake.Service, converter *converters.IntakeConverter, uploads *validator.UploadValidator, log logger.Logger) *IntakeHandler {
	return &IntakeHandler{
		service:   service,
		converter: converter,
		uploads:   uploads,
		logger:    log.Named("http"),
	}
}

// Upload creates one intake per uploaded scan.
func (h *IntakeHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		writeError(c, h.logger, http.StatusBadRequest, "Invalid form data.", err)
		return
	}
	headers := form.File["scans[]"]
	if len(headers) == 0 {
		headers = form.File["scans"]
	}

	infos, err := h.uploads.ValidateFiles(headers)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}

	files := make([]intake.UploadFile, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for i, header := range headers {
		f, err := header.Open()
		if err != nil {
			writeError(c, h.logger, http.StatusBadRequest, "Invalid file upload.", err)
			return
		}
		opened = append(opened, f)
		files = append(files, intake.UploadFile{
			Name:     header.Filename,
			MimeType: infos[i].MimeType,
			Body:     f,
		})
	}

	userID := middleware.UserID(c)
	items, err := h.service.Upload(c.Request.Context(), userID, files)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	h.respondItems(c, http.StatusAccepted, items)
}

// Index returns the caller's intakes listed in ?ids=1,2,3.
func (h *IntakeHandler) Index(c *gin.Context) {
	ids := ParseIDs(c.Query("ids"))
	items, err := h.service.List(c.Request.Context(), middleware.UserID(c), ids)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	h.respondItems(c, http.StatusOK, items)
}

func (h *IntakeHandler) Start(c *gin.Context) {
	h.transition(c, h.service.Start)
}

func (h *IntakeHandler) Retry(c *gin.Context) {
	h.transition(c, h.service.Retry)
}

func (h *IntakeHandler) transition(c *gin.Context, fn func(ctx context.Context, userID, id int64) (*models.Intake, error)) {
	id, ok := h.intakeID(c)
	if !ok {
		return
	}
	in, err := fn(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	h.respondOne(c, in)
}

// Finalize records the filing decision of a finished intake.
func (h *IntakeHandler) Finalize(c *gin.Context) {
	id, ok := h.intakeID(c)
	if !ok {
		return
	}
	var input intake.FinalizeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		writeError(c, h.logger, http.StatusBadRequest, "Invalid request body.", err)
		return
	}
	in, err := h.service.Finalize(c.Request.Context(), middleware.UserID(c), id, input)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	h.respondOne(c, in)
}

func (h *IntakeHandler) Destroy(c *gin.Context) {
	id, ok := h.intakeID(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *IntakeHandler) DestroyBulk(c *gin.Context) {
	var req BulkDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, http.StatusBadRequest, "Invalid request body.", err)
		return
	}
	if len(req.IDs) == 0 {
		handleError(c, h.logger, apperr.Invalid("ids", "At least one intake id is required."))
		return
	}

	skipped, err := h.service.DeleteBulk(c.Request.Context(), middleware.UserID(c), req.IDs)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	if len(skipped) > 0 {
		logger.FromContext(c.Request.Context(), h.logger).Info("Bulk delete skipped intakes",
			logger.Int64s("skipped", skipped),
		)
	}
	c.Status(http.StatusNoContent)
}

// Stream analyzes the posted files and streams the model's NDJSON output.
// Failures after the first byte are reported as a trailing error record.
func (h *IntakeHandler) Stream(c *gin.Context) {
	var req StreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, h.logger, http.StatusBadRequest, "Invalid request body.", err)
		return
	}
	if len(req.Files) == 0 {
		handleError(c, h.logger, apperr.Invalid("files", "At least one file is required."))
		return
	}

	started := false
	_, err := h.service.Stream(c.Request.Context(), req.Files, func(delta string) error {
		if !started {
			c.Header("Content-Type", NDJSONContentType)
			c.Header("Cache-Control", "no-cache")
			c.Header("X-Accel-Buffering", "no")
			c.Status(http.StatusOK)
			started = true
		}
		if _, err := c.Writer.WriteString(delta); err != nil {
			return fmt.Errorf("client went away: %w", err)
		}
		c.Writer.Flush()
		return nil
	})
	if err == nil {
		if !started {
			c.Header("Content-Type", NDJSONContentType)
			c.Status(http.StatusOK)
		}
		return
	}
	if !started {
		handleError(c, h.logger, err)
		return
	}

	logger.FromContext(c.Request.Context(), h.logger).Warn("Stream aborted", logger.Error(err))
	line, _ := json.Marshal(map[string]string{"type": "error", "value": apperr.UserMessage(err)})
	c.Writer.WriteString("\n" + string(line) + "\n")
	c.Writer.Flush()
}

func (h *IntakeHandler) intakeID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		handleError(c, h.logger, fmt.Errorf("intake %q: %w", c.Param("id"), apperr.ErrNotFound))
		return 0, false
	}
	return id, true
}

func (h *IntakeHandler) respondOne(c *gin.Context, in *models.Intake) {
	view, err := h.converter.Convert(c.Request.Context(), in)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *IntakeHandler) respondItems(c *gin.Context, status int, items []*models.Intake) {
	views, err := h.converter.ConvertAll(c.Request.Context(), items)
	if err != nil {
		handleError(c, h.logger, err)
		return
	}
	c.JSON(status, ItemsResponse{Items: views})
}

// ParseIDs reads a comma separated id list, ignoring anything that is not a
// plain positive integer.
func ParseIDs(raw string) []int64 {
	ids := make([]int64, 0)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || strings.TrimLeft(part, "0123456789") != "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
