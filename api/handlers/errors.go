package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cieplik206/dokumenty/internal/apperr"
	"github.com/cieplik206/dokumenty/pkg/logger"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func errorCode(status int) string {
	switch status {
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	default:
		return "internal_error"
	}
}

// handleError maps err onto a status code and writes the error body.
// Server errors keep their details in the log.
func handleError(c *gin.Context, log logger.Logger, err error) {
	status := apperr.HTTPStatus(err)
	writeError(c, log, status, apperr.UserMessage(err), err)
}

func writeError(c *gin.Context, log logger.Logger, status int, message string, err error) {
	log = logger.FromContext(c.Request.Context(), log)
	resp := ErrorResponse{Error: errorCode(status), Message: message}

	var verr *apperr.ValidationError
	if errors.As(err, &verr) && verr.Field != "" {
		resp.Fields = map[string]string{verr.Field: verr.Message}
	}

	if status >= http.StatusInternalServerError {
		log.Error("Request failed",
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", status),
			logger.Error(err),
		)
		if status == http.StatusInternalServerError {
			resp.Message = "Something went wrong."
		}
	} else {
		log.Warn("Request rejected",
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", status),
			logger.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, resp)
}
