package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(ErrTransient, "rasterize", "pdftoppm failed", cause)

	assert.ErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "transient failure: rasterize: pdftoppm failed: exit status 1", err.Error())
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := Wrap(nil, "", "", nil)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Contains(t, err.Error(), "intake failure")
}

func TestValidationErrorClassification(t *testing.T) {
	plain := Invalid("scans", "no supported images found")
	assert.ErrorIs(t, plain, ErrValidation)
	assert.NotErrorIs(t, plain, ErrDependencyMissing)

	missing := Missing("scans", "install poppler-utils")
	assert.ErrorIs(t, missing, ErrValidation)
	assert.ErrorIs(t, missing, ErrDependencyMissing)

	wrapped := fmt.Errorf("collect images: %w", missing)
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(wrapped))
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, TruncatedMessage, UserMessage(Wrap(ErrOutputTruncated, "infer", "", nil)))
	assert.Equal(t, TruncatedMessage, UserMessage(errors.New("Maximum Max Tokens reached")))
	assert.Equal(t, "no supported images found", UserMessage(fmt.Errorf("x: %w", Invalid("scans", "no supported images found"))))
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
	assert.Equal(t, GenericFailureMessage, UserMessage(errors.New("  ")))
	assert.Equal(t, GenericFailureMessage, UserMessage(nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		ErrNotFound:                http.StatusNotFound,
		ErrConflict:                http.StatusConflict,
		ErrTimeout:                 http.StatusGatewayTimeout,
		errors.New("unclassified"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}

func TestConflictCarriesMessage(t *testing.T) {
	err := fmt.Errorf("start: %w", Conflict("intake %d is %s", 4, "queued"))
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, http.StatusConflict, HTTPStatus(err))
	assert.Equal(t, "intake 4 is queued", UserMessage(err))
}
