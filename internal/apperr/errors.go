package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrDependencyMissing = errors.New("dependency missing")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrTimeout           = errors.New("timeout")
	ErrTransient         = errors.New("transient failure")
	ErrOutputTruncated   = errors.New("model output truncated")
	ErrSourceUnreadable  = errors.New("source file unreadable")
)

// TruncatedMessage replaces the raw error text on intakes whose model
// response hit the output token limit.
const TruncatedMessage = "The document is too large to analyze. Try a smaller file or fewer pages."

// GenericFailureMessage is recorded when a failed job carries no message.
const GenericFailureMessage = "Document analysis failed."

// BusyMessage is recorded on a queued intake whose previous run still holds
// the lease.
const BusyMessage = "An earlier analysis of this document is still running. Retry in a moment."

// ValidationError is a user-facing input error attached to a request field.
type ValidationError struct {
	Field   string
	Message string
	// Dependency marks errors caused by a missing local tool.
	Dependency bool
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	return e.Dependency && target == ErrDependencyMissing
}

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Missing builds a ValidationError for an absent local dependency.
func Missing(field, message string) error {
	return &ValidationError{Field: field, Message: message, Dependency: true}
}

// StateError reports an operation the resource's current state refuses.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return e.Message }

func (e *StateError) Is(target error) bool { return target == ErrConflict }

// Conflict builds a StateError.
func Conflict(format string, args ...any) error {
	return &StateError{Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error that carries operation context and is tagged with
// marker for later classification. marker should be one of the sentinels above.
func Wrap(marker error, operation, message string, err error) error {
	detail := buildDetail(operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTruncation reports whether err means the model ran out of output tokens.
func IsTruncation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrOutputTruncated) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "max tokens")
}

// UserMessage is the text stored on a failed intake.
func UserMessage(err error) string {
	if err == nil {
		return GenericFailureMessage
	}
	if IsTruncation(err) {
		return TruncatedMessage
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	var serr *StateError
	if errors.As(err, &serr) {
		return serr.Message
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return GenericFailureMessage
}

// HTTPStatus maps an error to the response status code.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func buildDetail(operation, message string) string {
	parts := make([]string, 0, 2)
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "intake failure"
	}
	return strings.Join(parts, ": ")
}
