package engine

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/cesargomez89/keepoffline/internal/transfer"
)

// Status detail strings shown next to a download.
const (
	DetailNoNetwork      = "Waiting for network"
	DetailWaitingForWiFi = "Waiting for Wi-Fi"
	DetailWaitingToRetry = "Waiting to retry"
	DetailPaused         = "Paused"
	DetailQueued         = "Queued"
)

// PauseDetail maps a provider pause reason onto one of the user-facing
// categories.
func PauseDetail(state transfer.State, reason transfer.PauseReason) string {
	switch reason {
	case transfer.PauseWaitingForNetwork:
		return DetailNoNetwork
	case transfer.PauseQueuedForWiFi:
		return DetailWaitingForWiFi
	case transfer.PauseWaitingToRetry:
		return DetailWaitingToRetry
	}
	if state == transfer.StatePaused {
		return DetailPaused
	}
	return DetailQueued
}

// FailureDetail describes a classified failure. free is only used for the
// insufficient-space message.
func FailureDetail(reason transfer.FailureReason, total int64, free uint64) string {
	switch reason {
	case transfer.FailureStorageMissing:
		return "Storage unavailable"
	case transfer.FailureFileExists:
		return "File already exists"
	case transfer.FailureDataError:
		return "Download data error"
	case transfer.FailureUnsupportedHTTP:
		return "Server rejected the download"
	case transfer.FailureInsufficientSpace:
		if total > 0 {
			return fmt.Sprintf("Not enough space: needs %s, %s free", humanize.Bytes(uint64(total)), humanize.Bytes(free))
		}
		return "Not enough space"
	default:
		return "Download failed"
	}
}

// normalizeFailure folds empty or unrecognized reasons into unknown.
func normalizeFailure(reason transfer.FailureReason) transfer.FailureReason {
	switch reason {
	case transfer.FailureStorageMissing, transfer.FailureFileExists, transfer.FailureDataError,
		transfer.FailureUnsupportedHTTP, transfer.FailureInsufficientSpace:
		return reason
	}
	return transfer.FailureUnknown
}
