package analyst

import (
	"errors"
	"fmt"
)

// ErrEmptyQuestion is returned for empty or whitespace-only questions,
// before any network activity.
var ErrEmptyQuestion = errors.New("question is empty")

// RequestError is a non-success reply from the analyst endpoint. The body and
// trace ID are preserved verbatim for diagnostics; all non-200 statuses are
// treated uniformly and never retried.
type RequestError struct {
	Status  int
	TraceID string
	Body    string
}

func (e *RequestError) Error() string {
	if e.TraceID != "" {
		return fmt.Sprintf("analyst request (trace %s) failed with status %d: %s", e.TraceID, e.Status, e.Body)
	}
	return fmt.Sprintf("analyst request failed with status %d: %s", e.Status, e.Body)
}
