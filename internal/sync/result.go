package sync

import (
	"fmt"
	"time"
)

// Status is the aggregate outcome of a sync pass.
type Status string

const (
	// StatusSuccess means both phases succeeded.
	StatusSuccess Status = "success"
	// StatusPartial means exactly one phase succeeded.
	StatusPartial Status = "partial"
	// StatusFailed means neither phase succeeded.
	StatusFailed Status = "failed"
)

// User-facing result messages.
const (
	MessageSuccess = "Sync completed successfully"
	MessagePartial = "Sync completed with some errors"
	MessageFailed  = "Sync failed"
	MessageStopped = "sync engine stopped"
)

// Result is the single report delivered for every sync request.
type Result struct {
	Status  Status
	Message string

	// Uploaded counts rows confirmed by the remote; UploadFailed counts
	// rows the remote rejected and that stay unsynced.
	Uploaded     int
	UploadFailed int

	// Downloaded counts imported rows, Skipped rows already present
	// locally, InsertFailed rows the store refused.
	Downloaded   int
	Skipped      int
	InsertFailed int

	UploadErr   error
	DownloadErr error

	// AuthFailed is set when the remote rejected our credentials.
	AuthFailed bool

	StartedAt  time.Time
	FinishedAt time.Time
}

// OK reports whether at least one phase succeeded.
func (r Result) OK() bool {
	return r.Status == StatusSuccess || r.Status == StatusPartial
}

// Summary is a one-line description with counters.
func (r Result) Summary() string {
	return fmt.Sprintf("%s (uploaded %d, failed %d, downloaded %d, skipped %d)",
		r.Message, r.Uploaded, r.UploadFailed, r.Downloaded, r.Skipped)
}

func failedResult(msg string) Result {
	now := time.Now()
	return Result{Status: StatusFailed, Message: msg, StartedAt: now, FinishedAt: now}
}

// aggregate derives the status from the two phase outcomes.
func aggregate(uploadOK, downloadOK bool) (Status, string) {
	switch {
	case uploadOK && downloadOK:
		return StatusSuccess, MessageSuccess
	case uploadOK || downloadOK:
		return StatusPartial, MessagePartial
	default:
		return StatusFailed, MessageFailed
	}
}
