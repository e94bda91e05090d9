package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external service error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
	ErrInvariant     = errors.New("invariant violation")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		if marker != ErrTimeout && errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %w: %s: %w", marker, ErrTimeout, detail, err)
		}
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails summarises an error for structured logs and notifications.
type ErrorDetails struct {
	Kind    string
	Message string
	Hint    string
}

// Details classifies err by its marker. A nil error yields zero details.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: Kind(err), Message: err.Error()}
	switch details.Kind {
	case "timeout":
		details.Hint = "raise the stage timeout in [workflow] or check the remote service"
	case "configuration":
		details.Hint = "run quill config validate"
	case "validation":
		details.Hint = "inspect the work item and document header"
	case "invariant":
		details.Hint = "another process may be writing the queue; check for a second quill instance"
	case "not_found":
		details.Hint = "check that the document exists under the content directory"
	case "external":
		details.Hint = "check API credentials and service status"
	}
	return details
}

// Kind returns a stable short name for the marker carried by err.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvariant):
		return "invariant"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrExternalTool):
		return "external"
	case errors.Is(err, ErrTransient):
		return "transient"
	default:
		return "unknown"
	}
}

// Retriable reports whether an operator retry has a reasonable chance of
// succeeding without changes.
func Retriable(err error) bool {
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Truncate bounds an error message to limit runes, appending an ellipsis when cut.
func Truncate(message string, limit int) string {
	message = strings.TrimSpace(message)
	if limit <= 0 {
		return message
	}
	runes := []rune(message)
	if len(runes) <= limit {
		return message
	}
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
