package dto

import "github.com/cesargomez89/keepoffline/internal/domain"

type CreateJobRequest struct {
	MediaID    string `json:"media_id"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	ArtworkURL string `json:"artwork_url"`
	Count      *int   `json:"count"`
}

// Validate defaults a missing count to one item.
func (r *CreateJobRequest) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, validateRequired("media_id", r.MediaID)...)
	errs = append(errs, validateKind(r.Kind)...)
	errs = append(errs, validateURL("artwork_url", r.ArtworkURL)...)
	if r.Count != nil {
		errs = append(errs, validateCount(r.Count, false)...)
	}
	return errs
}

func (r *CreateJobRequest) DesiredCount() int {
	if r.Count == nil {
		return 1
	}
	return *r.Count
}

// CountRequest sets a job's desired count. Zero deletes the job.
type CountRequest struct {
	Count *int `json:"count"`
}

func (r *CountRequest) Validate() []ValidationError {
	return validateCount(r.Count, true)
}

type ProfileRequest struct {
	ProfileID string `json:"profile_id"`
}

func (r *ProfileRequest) Validate() []ValidationError {
	return validateRequired("profile_id", r.ProfileID)
}

type MeteredRequest struct {
	AllowMetered *bool `json:"allow_metered"`
}

func (r *MeteredRequest) Validate() []ValidationError {
	if r.AllowMetered == nil {
		return []ValidationError{{Field: "allow_metered", Message: "is required"}}
	}
	return nil
}

type JobResponse struct {
	ID            string  `json:"id"`
	MediaID       string  `json:"media_id"`
	Kind          string  `json:"kind"`
	Title         string  `json:"title"`
	Count         int     `json:"count"`
	Status        string  `json:"status"`
	StatusDetail  string  `json:"status_detail,omitempty"`
	ArtworkFile   string  `json:"artwork_file,omitempty"`
	Progress      float64 `json:"progress"`
	Files         int     `json:"files"`
	FinishedFiles int     `json:"finished_files"`
}

func NewJobResponse(j domain.UIJob) JobResponse {
	return JobResponse{
		ID:            j.JobID,
		MediaID:       j.MediaID,
		Kind:          string(j.Kind),
		Title:         j.Title,
		Count:         j.Count,
		Status:        string(j.Status),
		StatusDetail:  j.StatusDetail,
		ArtworkFile:   j.ArtworkFile,
		Progress:      j.Percent,
		Files:         j.Files,
		FinishedFiles: j.FinishedFiles,
	}
}

func NewJobListResponse(jobs []domain.UIJob) []JobResponse {
	resp := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, NewJobResponse(j))
	}
	return resp
}

type CompletedResponse struct {
	ItemID string   `json:"item_id"`
	JobIDs []string `json:"job_ids"`
}
