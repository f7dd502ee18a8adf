package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrPermission     = errors.New("permission denied")
	ErrConflict       = errors.New("conflict")
	ErrNotFound       = errors.New("not found")
	ErrProvider       = errors.New("provider error")
	ErrInfrastructure = errors.New("infrastructure error")
)

// Wrap builds an error message that includes component context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrInfrastructure
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a failure is worth re-running at the task level.
// Caller mistakes (validation, permission, conflict, missing records) and
// exhausted provider calls are terminal; infrastructure failures and anything
// unclassified get another attempt.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrPermission),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrProvider):
		return false
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
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
