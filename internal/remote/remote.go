// Package remote talks to the remote event service that local rows are
// reconciled against.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/reminders/internal/model"
)

// Client uploads local events and downloads remote ones.
type Client interface {
	// Upload sends events in one batch. The returned slice has one entry
	// per input, in input order. A non-nil error means the batch failed
	// as a whole and no item was accepted.
	Upload(ctx context.Context, events []model.Event) ([]UploadResult, error)

	// Download returns the remote event set.
	Download(ctx context.Context) ([]model.RemoteEvent, error)
}

// UploadResult is the outcome of uploading a single event.
type UploadResult struct {
	RemoteID string
	Err      error
}

// OK reports whether the item was accepted.
func (r UploadResult) OK() bool {
	return r.Err == nil && r.RemoteID != ""
}

// ErrAuth indicates the remote rejected our credentials.
var ErrAuth = errors.New("remote authentication failed")

// StatusError is a non-2xx response from the remote.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d on %s %s: %s", e.Code, e.Method, e.Path, e.Body)
}

// IsAuthError reports whether err is a credential failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuth)
}
