// Package projection turns stored jobs and downloads into the read model
// shown to the user. It performs no I/O.
package projection

import (
	"sort"

	"github.com/cesargomez89/keepoffline/internal/domain"
)

// Project aggregates downloads per job. Jobs keep their input order;
// downloads of unknown jobs are ignored.
func Project(jobs []*domain.Job, downloads []*domain.Download) []domain.UIJob {
	byJob := make(map[string][]*domain.Download, len(jobs))
	for _, d := range downloads {
		byJob[d.JobID] = append(byJob[d.JobID], d)
	}

	out := make([]domain.UIJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, projectJob(job, byJob[job.ID]))
	}
	return out
}

func projectJob(job *domain.Job, downloads []*domain.Download) domain.UIJob {
	ui := domain.UIJob{
		JobID:   job.ID,
		MediaID: job.MediaID,
		Kind:    job.Kind,
		Title:   job.Title,
		Count:   job.Count,
		Files:   len(downloads),
		Status:  domain.DownloadStatusPending,
	}

	ordered := make([]*domain.Download, len(downloads))
	copy(ordered, downloads)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].SortIndex != ordered[j].SortIndex {
			return ordered[i].SortIndex < ordered[j].SortIndex
		}
		return ordered[i].ID < ordered[j].ID
	})

	var total, transferred int64
	for _, d := range ordered {
		if d.IsJobArtwork(job) && d.Status == domain.DownloadStatusFinished {
			ui.ArtworkFile = d.FileName
		}
		if d.Status == domain.DownloadStatusFinished {
			ui.FinishedFiles++
		}
		if d.TotalBytes > 0 {
			total += d.TotalBytes
			transferred += d.TransferredBytes
		}
	}
	ui.Percent = percent(transferred, total)

	// Metadata is unknown until the first plan succeeds.
	if job.LastPlannedAt == nil || len(ordered) == 0 {
		return ui
	}

	ui.Status = domain.DownloadStatusFinished
	for _, d := range ordered {
		if d.Status != domain.DownloadStatusFinished {
			ui.Status = d.Status
			ui.StatusDetail = d.StatusDetail
			break
		}
	}
	return ui
}

func percent(transferred, total int64) float64 {
	if total <= 0 {
		return 0
	}
	p := float64(transferred) / float64(total)
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
