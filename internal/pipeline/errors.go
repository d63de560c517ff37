package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/commute-rent/internal/model"
)

// ErrAddressNotFound is returned when the geocoder cannot place the
// workplace address. Its message is shown to the user as is.
var ErrAddressNotFound = errors.New("Check your address again for typos. The address must be within the immediate DC/MD/VA area.") //nolint:revive,staticcheck

// ValidationError carries per-field messages for a rejected request.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, strings.Join(e.Fields[k], "; ")))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// Unwrap lets errors.Is match model.ErrInvalidRequest.
func (e *ValidationError) Unwrap() error {
	return model.ErrInvalidRequest
}

// UpstreamError marks a failure of the mapping provider.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err came from the mapping provider.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
