package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cesargomez89/keepoffline/internal/domain"
)

// ErrStalePlan is returned when the job changed between planning and apply.
var ErrStalePlan = errors.New("job changed since it was planned")

const downloadColumns = `id, job_id, sort_index, item_id, item_kind, disposition, url, file_name, handle,
	total_bytes, transferred_bytes, status, status_detail, failure_reason, last_retry_at, playback, created_at, updated_at`

// PlanChanges is the write side of one planner run for a single job.
type PlanChanges struct {
	Create  []*domain.Download
	Delete  []int64
	Reindex map[int64]int
}

func (c PlanChanges) Empty() bool {
	return len(c.Create) == 0 && len(c.Delete) == 0 && len(c.Reindex) == 0
}

func (db *DB) GetDownload(id int64) (*domain.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE id = ?`

	d := &domain.Download{}
	err := db.Get(d, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (db *DB) ListDownloadsByJob(jobID string) ([]*domain.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads WHERE job_id = ? ORDER BY sort_index ASC, id ASC`

	var downloads []*domain.Download
	err := db.Select(&downloads, query, jobID)
	return downloads, err
}

// ListDownloadsByProfile returns the profile's downloads ordered job by job,
// up-next items first within each job.
func (db *DB) ListDownloadsByProfile(profileID string) ([]*domain.Download, error) {
	query := `SELECT ` + prefixed("d.", downloadColumns) + `
		FROM downloads d JOIN jobs j ON j.id = d.job_id
		WHERE j.profile_id = ?
		ORDER BY j.created_at ASC, j.id ASC, d.sort_index ASC, d.id ASC`

	var downloads []*domain.Download
	err := db.Select(&downloads, query, profileID)
	return downloads, err
}

func (db *DB) ListAllDownloads() ([]*domain.Download, error) {
	query := `SELECT ` + downloadColumns + ` FROM downloads ORDER BY job_id ASC, sort_index ASC, id ASC`

	var downloads []*domain.Download
	err := db.Select(&downloads, query)
	return downloads, err
}

// ListHandles returns every provider handle the store knows about, across
// all profiles.
func (db *DB) ListHandles() (map[string]int64, error) {
	type row struct {
		ID     int64  `db:"id"`
		Handle string `db:"handle"`
	}
	var rows []row
	if err := db.Select(&rows, `SELECT id, handle FROM downloads WHERE handle IS NOT NULL`); err != nil {
		return nil, err
	}
	handles := make(map[string]int64, len(rows))
	for _, r := range rows {
		handles[r.Handle] = r.ID
	}
	return handles, nil
}

func (db *DB) ListFileNames() ([]string, error) {
	var names []string
	err := db.Select(&names, `SELECT file_name FROM downloads`)
	return names, err
}

// ApplyPlan writes a planner diff and marks the job planned. The job is
// re-read inside the transaction; if it was modified or deleted after the
// planner read it, nothing is written and ErrStalePlan or ErrJobNotFound is
// returned. Handles of deleted rows are returned so their transfers can be
// canceled.
func (db *DB) ApplyPlan(ctx context.Context, job *domain.Job, changes PlanChanges, plannedAt time.Time) ([]string, error) {
	var released []string
	err := db.RunInTx(ctx, func(tx *sqlx.Tx) error {
		current := &domain.Job{}
		err := tx.Get(current, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, job.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrJobNotFound
		}
		if err != nil {
			return err
		}
		if !current.UpdatedAt.Equal(job.UpdatedAt) {
			return ErrStalePlan
		}

		for _, id := range changes.Delete {
			var handle sql.NullString
			err := tx.Get(&handle, `SELECT handle FROM downloads WHERE id = ? AND job_id = ?`, id, job.ID)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return err
			}
			if _, err := tx.Exec(`DELETE FROM downloads WHERE id = ?`, id); err != nil {
				return fmt.Errorf("failed to delete download %d: %w", id, err)
			}
			if handle.Valid && handle.String != "" {
				released = append(released, handle.String)
			}
		}

		insert := `INSERT INTO downloads (job_id, sort_index, item_id, item_kind, disposition, url, file_name,
				status, status_detail, playback, created_at, updated_at)
			VALUES (:job_id, :sort_index, :item_id, :item_kind, :disposition, :url, :file_name,
				:status, :status_detail, :playback, :created_at, :updated_at)
			ON CONFLICT(job_id, item_id, disposition) DO NOTHING`
		for _, d := range changes.Create {
			d.JobID = job.ID
			if d.Status == "" {
				d.Status = domain.DownloadStatusPending
			}
			d.CreatedAt = plannedAt
			d.UpdatedAt = plannedAt
			if _, err := tx.NamedExec(insert, d); err != nil {
				return fmt.Errorf("failed to create download %s/%s: %w", d.ItemID, d.Disposition, err)
			}
		}

		for id, index := range changes.Reindex {
			if _, err := tx.Exec(`UPDATE downloads SET sort_index = ?, updated_at = ? WHERE id = ? AND job_id = ?`,
				index, plannedAt, id, job.ID); err != nil {
				return err
			}
		}

		_, err = tx.Exec(`UPDATE jobs SET pending = 0, last_planned_at = ?, updated_at = ? WHERE id = ?`,
			plannedAt, plannedAt, job.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

// SetDownloadHandle records a freshly issued transfer. It only succeeds for a
// row that still exists without a handle, so a concurrent delete or start
// makes it report false and the caller must cancel the transfer.
func (db *DB) SetDownloadHandle(id int64, handle string, at time.Time) (bool, error) {
	query := `UPDATE downloads SET handle = ?, status = ?, status_detail = '', failure_reason = '', last_retry_at = ?, updated_at = ?
		WHERE id = ? AND handle IS NULL AND status != ?`
	return affected(db.Exec(query, handle, domain.DownloadStatusPending, at, at, id, domain.DownloadStatusFinished))
}

// UpdateDownloadProgress stores the latest provider snapshot for the transfer
// still owning the row.
func (db *DB) UpdateDownloadProgress(id int64, handle string, status domain.DownloadStatus, detail string, total, transferred int64) (bool, error) {
	query := `UPDATE downloads SET status = ?, status_detail = ?, total_bytes = ?, transferred_bytes = ?, updated_at = ?
		WHERE id = ? AND handle = ?`
	return affected(db.Exec(query, status, detail, total, transferred, time.Now(), id, handle))
}

// MarkDownloadFinished releases the handle once the final file is in place.
func (db *DB) MarkDownloadFinished(id int64, handle string, size int64) (bool, error) {
	query := `UPDATE downloads SET status = ?, status_detail = '', handle = NULL, total_bytes = ?, transferred_bytes = ?, updated_at = ?
		WHERE id = ? AND handle = ?`
	return affected(db.Exec(query, domain.DownloadStatusFinished, size, size, time.Now(), id, handle))
}

// FailDownload records a classified failure and releases the handle. The
// start step decides when the row is retried.
func (db *DB) FailDownload(id int64, handle, reason, detail string, total int64) (bool, error) {
	query := `UPDATE downloads SET status = ?, failure_reason = ?, status_detail = ?, handle = NULL, total_bytes = ?, updated_at = ?
		WHERE id = ? AND handle = ?`
	return affected(db.Exec(query, domain.DownloadStatusError, reason, detail, total, time.Now(), id, handle))
}

// ResetDownload clears the handle so the start step re-issues the transfer.
func (db *DB) ResetDownload(id int64, handle string, detail string) (bool, error) {
	query := `UPDATE downloads SET status = ?, status_detail = ?, failure_reason = '', handle = NULL, transferred_bytes = 0, updated_at = ?
		WHERE id = ? AND handle = ?`
	return affected(db.Exec(query, domain.DownloadStatusPending, detail, time.Now(), id, handle))
}

// ReopenFinishedDownload puts a finished row whose file disappeared back in
// the start queue.
func (db *DB) ReopenFinishedDownload(id int64) (bool, error) {
	query := `UPDATE downloads SET status = ?, status_detail = '', transferred_bytes = 0, updated_at = ?
		WHERE id = ? AND status = ? AND handle IS NULL`
	return affected(db.Exec(query, domain.DownloadStatusPending, time.Now(), id, domain.DownloadStatusFinished))
}

// DeleteOrphanDownloads removes rows whose job no longer exists.
func (db *DB) DeleteOrphanDownloads() (int64, error) {
	res, err := db.Exec(`DELETE FROM downloads WHERE job_id NOT IN (SELECT id FROM jobs)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
