package engine

import (
	"context"
	"errors"
	"time"

	"github.com/cesargomez89/keepoffline/internal/constants"
	"github.com/cesargomez89/keepoffline/internal/domain"
	"github.com/cesargomez89/keepoffline/internal/logger"
	"github.com/cesargomez89/keepoffline/internal/metrics"
	"github.com/cesargomez89/keepoffline/internal/storage"
	"github.com/cesargomez89/keepoffline/internal/store"
	"github.com/cesargomez89/keepoffline/internal/transfer"
)

// Settings is the preference collaborator read on every tick.
type Settings interface {
	AllowMetered() (bool, error)
	ActiveProfile() (string, error)
}

// Limits caps concurrent transfers per class.
type Limits struct {
	Support int
	Video   int
}

func DefaultLimits() Limits {
	return Limits{Support: constants.DefaultSupportTransfers, Video: constants.DefaultVideoTransfers}
}

func (l Limits) of(class string) int {
	if class == "video" {
		return l.Video
	}
	return l.Support
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Queried  int
	Finished int
	Failed   int
	Started  int
	Canceled int
}

// Reconciler drives the transfer provider toward the stored downloads.
type Reconciler struct {
	db       *store.DB
	provider transfer.Provider
	dir      *storage.Dir
	settings Settings
	logger   *logger.Logger
	now      func() time.Time
	limits   Limits
	backoff  time.Duration
}

func NewReconciler(db *store.DB, provider transfer.Provider, dir *storage.Dir, settings Settings, limits Limits, backoff time.Duration, log *logger.Logger) *Reconciler {
	if log == nil {
		log = logger.Default()
	}
	if limits.Support <= 0 {
		limits.Support = constants.DefaultSupportTransfers
	}
	// At most one video transfer runs system-wide.
	if limits.Video <= 0 || limits.Video > constants.DefaultVideoTransfers {
		limits.Video = constants.DefaultVideoTransfers
	}
	return &Reconciler{
		db:       db,
		provider: provider,
		dir:      dir,
		settings: settings,
		logger:   log.WithComponent("reconciler"),
		now:      time.Now,
		limits:   limits,
		backoff:  backoff,
	}
}

// SyncStatus runs one status-loop pass. Starting new transfers is skipped
// while offline; live transfers are still tracked.
func (r *Reconciler) SyncStatus(ctx context.Context, online bool) (SyncResult, error) {
	var res SyncResult

	all, err := r.db.ListAllDownloads()
	if err != nil {
		return res, err
	}

	inFlight := map[string]int{}
	for _, d := range all {
		if !d.HasHandle() {
			continue
		}
		res.Queried++
		switch r.syncOne(d) {
		case outcomeFinished:
			res.Finished++
		case outcomeFailed:
			res.Failed++
		}
		if d.InFlight() {
			inFlight[d.Disposition.Class()]++
		}
	}

	if online {
		started, err := r.startPending(ctx, inFlight)
		res.Started = started
		if err != nil {
			r.logger.Warn("Failed to start transfers", "error", err)
		}
	}

	for _, class := range []string{"video", "support"} {
		metrics.TransfersInFlight.WithLabelValues(class).Set(float64(inFlight[class]))
	}

	canceled, err := r.cancelUnknown()
	res.Canceled = canceled
	if err != nil {
		r.logger.Warn("Failed to reconcile provider handles", "error", err)
	}

	return res, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeProgress
	outcomeFinished
	outcomeFailed
	outcomeReset
)

// syncOne applies the provider snapshot to d and updates d in place so the
// caller sees the post-sync state.
func (r *Reconciler) syncOne(d *domain.Download) outcome {
	handle := *d.Handle
	log := r.logger.WithDownload(d.ID, string(d.Disposition))

	snap, err := r.provider.Query(handle)
	if errors.Is(err, transfer.ErrUnknownHandle) {
		ok, err := r.db.ResetDownload(d.ID, handle, "")
		if err != nil {
			log.Warn("Failed to reset lost transfer", "error", err)
			return outcomeUnchanged
		}
		if ok {
			log.Info("Provider lost transfer, re-queued", "handle", handle)
			d.Handle = nil
			d.Status = domain.DownloadStatusPending
		}
		return outcomeReset
	}
	if err != nil {
		log.Warn("Failed to query transfer", "handle", handle, "error", err)
		return outcomeUnchanged
	}

	switch snap.State {
	case transfer.StateSuccessful:
		return r.finish(d, handle, snap, log)
	case transfer.StateFailed:
		return r.fail(d, handle, normalizeFailure(snap.Failure), snap.TotalBytes, log)
	case transfer.StatePaused, transfer.StatePending:
		status := domain.DownloadStatusPending
		if snap.State == transfer.StatePaused {
			status = domain.DownloadStatusPaused
		}
		return r.progress(d, handle, status, PauseDetail(snap.State, snap.Pause), snap, log)
	default:
		return r.progress(d, handle, domain.DownloadStatusRunning, "", snap, log)
	}
}

func (r *Reconciler) progress(d *domain.Download, handle string, status domain.DownloadStatus, detail string, snap transfer.Snapshot, log *logger.Logger) outcome {
	if d.Status == status && d.StatusDetail == detail &&
		d.TotalBytes == snap.TotalBytes && d.TransferredBytes == snap.TransferredBytes {
		return outcomeUnchanged
	}
	ok, err := r.db.UpdateDownloadProgress(d.ID, handle, status, detail, snap.TotalBytes, snap.TransferredBytes)
	if err != nil {
		log.Warn("Failed to store progress", "error", err)
		return outcomeUnchanged
	}
	if ok {
		d.Status = status
		d.StatusDetail = detail
		d.TotalBytes = snap.TotalBytes
		d.TransferredBytes = snap.TransferredBytes
	}
	return outcomeProgress
}

func (r *Reconciler) finish(d *domain.Download, handle string, snap transfer.Snapshot, log *logger.Logger) outcome {
	size, err := r.dir.Promote(d.FileName)
	if errors.Is(err, storage.ErrEmptyTransfer) {
		log.Warn("Provider reported success without data", "file", d.FileName)
		return r.fail(d, handle, transfer.FailureDataError, snap.TotalBytes, log)
	}
	if err != nil {
		// Left running; the next tick tries the rename again.
		log.Warn("Failed to promote file", "file", d.FileName, "error", err)
		r.progress(d, handle, domain.DownloadStatusRunning, "", snap, log)
		return outcomeUnchanged
	}

	ok, err := r.db.MarkDownloadFinished(d.ID, handle, size)
	if err != nil {
		log.Warn("Failed to mark download finished", "error", err)
		return outcomeUnchanged
	}
	if !ok {
		// Row was deleted or restarted meanwhile; the collector removes the file.
		log.Debug("Download changed before it could be finished")
		return outcomeUnchanged
	}
	r.release(handle)

	d.Handle = nil
	d.Status = domain.DownloadStatusFinished
	d.TotalBytes = size
	d.TransferredBytes = size
	metrics.TransfersFinishedTotal.WithLabelValues(d.Disposition.Class()).Inc()
	log.Info("Download finished", "file", d.FileName, "size", size)
	return outcomeFinished
}

func (r *Reconciler) fail(d *domain.Download, handle string, reason transfer.FailureReason, total int64, log *logger.Logger) outcome {
	var free uint64
	if reason == transfer.FailureInsufficientSpace {
		free, _ = r.dir.FreeSpace()
	}
	if total <= 0 {
		total = d.TotalBytes
	}
	detail := FailureDetail(reason, total, free)

	ok, err := r.db.FailDownload(d.ID, handle, string(reason), detail, total)
	if err != nil {
		log.Warn("Failed to record failure", "error", err)
		return outcomeUnchanged
	}
	if !ok {
		return outcomeUnchanged
	}
	r.release(handle)

	d.Handle = nil
	d.Status = domain.DownloadStatusError
	d.StatusDetail = detail
	d.FailureReason = string(reason)
	d.TotalBytes = total
	metrics.TransfersFailedTotal.WithLabelValues(string(reason)).Inc()
	log.Warn("Download failed", "reason", reason)
	return outcomeFailed
}

func (r *Reconciler) release(handle string) {
	if err := r.provider.Cancel(handle); err != nil && !errors.Is(err, transfer.ErrUnknownHandle) {
		r.logger.Warn("Failed to release transfer", "handle", handle, "error", err)
	}
}

// startPending starts handle-less downloads of the active profile in plan
// order while the per-class caps allow.
func (r *Reconciler) startPending(ctx context.Context, inFlight map[string]int) (int, error) {
	profile, err := r.settings.ActiveProfile()
	if err != nil {
		return 0, err
	}
	allowMetered, err := r.settings.AllowMetered()
	if err != nil {
		return 0, err
	}
	candidates, err := r.db.ListDownloadsByProfile(profile)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, d := range candidates {
		if ctx.Err() != nil {
			return started, ctx.Err()
		}
		if d.HasHandle() {
			continue
		}
		if d.Status == domain.DownloadStatusFinished {
			r.verifyFinished(d)
			if d.Status == domain.DownloadStatusFinished {
				continue
			}
		}
		class := d.Disposition.Class()
		if inFlight[class] >= r.limits.of(class) {
			continue
		}
		if !r.retryDue(d) {
			continue
		}
		if r.start(ctx, d.ID, allowMetered) {
			inFlight[class]++
			started++
		}
	}
	return started, nil
}

// verifyFinished re-queues a finished download whose file vanished.
func (r *Reconciler) verifyFinished(d *domain.Download) {
	if size, ok := r.dir.Size(d.FileName); ok && size > 0 {
		return
	}
	ok, err := r.db.ReopenFinishedDownload(d.ID)
	if err != nil {
		r.logger.Warn("Failed to reopen download", "download_id", d.ID, "error", err)
		return
	}
	if ok {
		r.logger.Info("Finished file missing, re-queued", "download_id", d.ID, "file", d.FileName)
		d.Status = domain.DownloadStatusPending
	}
}

// retryDue applies the retry policy to a failed download.
func (r *Reconciler) retryDue(d *domain.Download) bool {
	if d.Status != domain.DownloadStatusError {
		return true
	}
	if transfer.FailureReason(d.FailureReason) == transfer.FailureInsufficientSpace && d.TotalBytes > 0 {
		free, err := r.dir.FreeSpace()
		if err == nil {
			return free >= uint64(d.TotalBytes)
		}
	}
	if d.LastRetryAt == nil {
		return true
	}
	return r.now().Sub(*d.LastRetryAt) >= r.backoff
}

// start issues a transfer for one download. The row is re-read first and the
// handle is only stored if the row still has none; otherwise the new
// transfer is canceled.
func (r *Reconciler) start(ctx context.Context, id int64, allowMetered bool) bool {
	d, err := r.db.GetDownload(id)
	if err != nil {
		r.logger.Warn("Failed to re-read download", "download_id", id, "error", err)
		return false
	}
	if d == nil || d.HasHandle() || d.Status == domain.DownloadStatusFinished {
		return false
	}
	log := r.logger.WithDownload(d.ID, string(d.Disposition))

	if err := r.dir.RemoveWithTemp(d.FileName); err != nil {
		log.Warn("Failed to remove stale file", "file", d.FileName, "error", err)
		return false
	}

	handle, err := r.provider.Enqueue(ctx, d.URL, r.dir.Path(storage.TempName(d.FileName)), allowMetered)
	if err != nil {
		log.Warn("Failed to enqueue transfer", "error", err)
		return false
	}

	ok, err := r.db.SetDownloadHandle(d.ID, handle, r.now())
	if err != nil || !ok {
		if err != nil {
			log.Warn("Failed to store handle", "error", err)
		}
		r.release(handle)
		return false
	}

	metrics.TransfersStartedTotal.WithLabelValues(d.Disposition.Class()).Inc()
	log.Debug("Transfer started", "handle", handle)
	return true
}

// cancelUnknown cancels provider transfers no stored download owns.
func (r *Reconciler) cancelUnknown() (int, error) {
	handles, err := r.provider.Handles()
	if err != nil {
		return 0, err
	}
	if len(handles) == 0 {
		return 0, nil
	}
	known, err := r.db.ListHandles()
	if err != nil {
		return 0, err
	}

	canceled := 0
	for _, h := range handles {
		if _, ok := known[h]; ok {
			continue
		}
		if err := r.provider.Cancel(h); err != nil && !errors.Is(err, transfer.ErrUnknownHandle) {
			r.logger.Warn("Failed to cancel unknown transfer", "handle", h, "error", err)
			continue
		}
		canceled++
		metrics.TransfersCanceledTotal.Inc()
		r.logger.Info("Canceled transfer with no matching download", "handle", h)
	}
	return canceled, nil
}
