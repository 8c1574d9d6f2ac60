package bundles

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a bundle, product or variant id does
	// not resolve. Never treated as zero stock.
	ErrNotFound = errors.New("not found")
)

// ValidationError collects per-field problems found at save time.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f, msg))
	}
	return "bundle validation failed: " + strings.Join(parts, "; ")
}

// AsValidationError unwraps err into a *ValidationError, if it is one.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
