package transfer

import (
	"context"
	"errors"
)

// ErrUnknownHandle is returned by Query and Cancel for a handle the provider
// does not hold, e.g. after a restart of the provider.
var ErrUnknownHandle = errors.New("unknown transfer handle")

// State is the provider-side lifecycle of one transfer.
type State string

const (
	StatePending    State = "pending"
	StateRunning    State = "running"
	StatePaused     State = "paused"
	StateSuccessful State = "successful"
	StateFailed     State = "failed"
)

// PauseReason explains why a transfer is queued or paused.
type PauseReason string

const (
	PauseNone              PauseReason = ""
	PauseWaitingForNetwork PauseReason = "waiting_for_network"
	PauseQueuedForWiFi     PauseReason = "queued_for_wifi"
	PauseWaitingToRetry    PauseReason = "waiting_to_retry"
	PauseUnknown           PauseReason = "unknown"
)

// FailureReason is the classified cause of a failed transfer.
type FailureReason string

const (
	FailureNone              FailureReason = ""
	FailureStorageMissing    FailureReason = "storage_missing"
	FailureFileExists        FailureReason = "file_exists"
	FailureDataError         FailureReason = "data_error"
	FailureUnsupportedHTTP   FailureReason = "unsupported_http_code"
	FailureInsufficientSpace FailureReason = "insufficient_space"
	FailureUnknown           FailureReason = "unknown"
)

// Snapshot is a point-in-time view of a transfer. TotalBytes is zero while
// the size is unknown.
type Snapshot struct {
	State            State
	Pause            PauseReason
	Failure          FailureReason
	TotalBytes       int64
	TransferredBytes int64
}

// Provider performs byte transfers of a URL into a local file. Query must
// not block on the network.
type Provider interface {
	Enqueue(ctx context.Context, url, destPath string, allowMetered bool) (string, error)
	Query(handle string) (Snapshot, error)
	Cancel(handle string) error
	// Handles lists every transfer the provider currently holds.
	Handles() ([]string, error)
}
