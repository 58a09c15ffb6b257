package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cesargomez89/keepoffline/internal/domain"
)

const jobColumns = `id, media_id, kind, profile_id, title, artwork_url, count, pending, last_planned_at, created_at, updated_at`

func (db *DB) CreateJob(job *domain.Job) error {
	if job.Count <= 0 {
		return domain.ErrInvalidCount
	}
	query := `INSERT INTO jobs (` + jobColumns + `)
		VALUES (:id, :media_id, :kind, :profile_id, :title, :artwork_url, :count, :pending, :last_planned_at, :created_at, :updated_at)`

	_, err := db.NamedExec(query, job)
	return err
}

func (db *DB) GetJob(id string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job := &domain.Job{}
	err := db.Get(job, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetJobByIdentity returns nil when the profile has no job for the target.
func (db *DB) GetJobByIdentity(mediaID string, kind domain.MediaKind, profileID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE media_id = ? AND kind = ? AND profile_id = ?`

	job := &domain.Job{}
	err := db.Get(job, query, mediaID, kind, profileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns the profile's jobs in a stable order.
func (db *DB) ListJobs(profileID string) ([]*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE profile_id = ? ORDER BY created_at ASC, id ASC`

	var jobs []*domain.Job
	err := db.Select(&jobs, query, profileID)
	return jobs, err
}

// UpdateJobCount changes the desired count and flags the job for re-planning.
func (db *DB) UpdateJobCount(id string, count int) error {
	if count <= 0 {
		return domain.ErrInvalidCount
	}
	query := `UPDATE jobs SET count = ?, pending = 1, updated_at = ? WHERE id = ?`
	return expectOne(db.Exec(query, count, time.Now(), id))
}

func (db *DB) SetJobPending(id string) error {
	query := `UPDATE jobs SET pending = 1, updated_at = ? WHERE id = ?`
	return expectOne(db.Exec(query, time.Now(), id))
}

// MarkJobsPendingForItem flags every job of the profile that owns a download
// for the item and returns the affected jobs.
func (db *DB) MarkJobsPendingForItem(profileID, itemID string) ([]*domain.Job, error) {
	var jobs []*domain.Job
	err := db.RunInTx(context.Background(), func(tx *sqlx.Tx) error {
		query := `SELECT ` + prefixed("j.", jobColumns) + `
			FROM jobs j
			WHERE j.profile_id = ? AND (j.media_id = ? OR EXISTS (
				SELECT 1 FROM downloads d WHERE d.job_id = j.id AND d.item_id = ?))
			ORDER BY j.created_at ASC, j.id ASC`
		if err := tx.Select(&jobs, query, profileID, itemID, itemID); err != nil {
			return err
		}
		now := time.Now()
		for _, j := range jobs {
			if _, err := tx.Exec(`UPDATE jobs SET pending = 1, updated_at = ? WHERE id = ?`, now, j.ID); err != nil {
				return err
			}
			j.Pending = true
		}
		return nil
	})
	return jobs, err
}

// DeleteJob removes the job and cascades its downloads.
func (db *DB) DeleteJob(id string) error {
	return db.RunInTx(context.Background(), func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`DELETE FROM downloads WHERE job_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete downloads: %w", err)
		}
		res, err := tx.Exec(`DELETE FROM jobs WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
		return expectOne(res, nil)
	})
}

func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
