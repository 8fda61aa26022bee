package patient

import (
	"errors"
	"strings"
)

var (
	ErrPatientNotFound        = errors.New("patient not found")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrConcurrentModification = errors.New("dataset was modified concurrently")
)

// ValidationError reports every payload field that failed type coercion.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}
