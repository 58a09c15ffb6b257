package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cesargomez89/keepoffline/internal/domain"
	"github.com/cesargomez89/keepoffline/internal/logger"
	"github.com/cesargomez89/keepoffline/internal/projection"
	"github.com/cesargomez89/keepoffline/internal/store"
	"github.com/cesargomez89/keepoffline/internal/transfer"
)

var ErrInvalidProfile = errors.New("profile id must not be empty")

// Invalidator drops cached metadata so the next plan sees fresh data.
type Invalidator interface {
	Invalidate(mediaID string, kind domain.MediaKind) error
}

// OfflineRequest asks for media to be kept available offline.
type OfflineRequest struct {
	MediaID    string           `json:"media_id"`
	Kind       domain.MediaKind `json:"kind"`
	Title      string           `json:"title"`
	ArtworkURL string           `json:"artwork_url"`
	Count      int              `json:"count"`
}

// Preferences is the current value of the engine's settings.
type Preferences struct {
	ActiveProfile string `json:"active_profile"`
	AllowMetered  bool   `json:"allow_metered"`
}

type JobService struct {
	Repo     *store.DB
	Settings *store.SettingsRepo
	Provider transfer.Provider
	Cache    Invalidator
	Logger   *logger.Logger
}

func NewJobService(repo *store.DB, settings *store.SettingsRepo, provider transfer.Provider, cache Invalidator, log *logger.Logger) *JobService {
	if log == nil {
		log = logger.Default()
	}
	return &JobService{
		Repo:     repo,
		Settings: settings,
		Provider: provider,
		Cache:    cache,
		Logger:   log.WithComponent("job_service"),
	}
}

// RequestOffline creates the job for the active profile, or updates the
// count of the existing one. Movies and episodes always want one item.
func (s *JobService) RequestOffline(req OfflineRequest) (*domain.Job, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedKind, req.Kind)
	}
	if req.MediaID == "" {
		return nil, errors.New("media id must not be empty")
	}
	if !req.Kind.IsCollection() {
		req.Count = 1
	}
	if req.Count <= 0 {
		return nil, domain.ErrInvalidCount
	}

	profile, err := s.Settings.ActiveProfile()
	if err != nil {
		return nil, fmt.Errorf("failed to read active profile: %w", err)
	}

	existing, err := s.Repo.GetJobByIdentity(req.MediaID, req.Kind, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing job: %w", err)
	}
	if existing != nil {
		if existing.Count != req.Count {
			if err := s.Repo.UpdateJobCount(existing.ID, req.Count); err != nil {
				return nil, err
			}
			s.Logger.Info("Job count updated", "job_id", existing.ID, "count", req.Count)
			return s.Repo.GetJob(existing.ID)
		}
		s.Logger.Info("Job already exists", "job_id", existing.ID, "media_id", req.MediaID, "kind", req.Kind)
		return existing, nil
	}

	now := time.Now()
	job := &domain.Job{
		ID:         uuid.New().String(),
		MediaID:    req.MediaID,
		Kind:       req.Kind,
		ProfileID:  profile,
		Title:      req.Title,
		ArtworkURL: req.ArtworkURL,
		Count:      req.Count,
		Pending:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Repo.CreateJob(job); err != nil {
		return nil, err
	}
	s.Logger.Info("Job created", "job_id", job.ID, "media_id", job.MediaID, "kind", job.Kind, "count", job.Count)
	return job, nil
}

// SetCount changes the desired count; zero or less deletes the job.
func (s *JobService) SetCount(id string, count int) error {
	if count <= 0 {
		return s.DeleteJob(id)
	}
	job, err := s.Repo.GetJob(id)
	if err != nil {
		return err
	}
	if !job.Kind.IsCollection() && count != 1 {
		return fmt.Errorf("%w: %s jobs hold exactly one item", domain.ErrInvalidCount, job.Kind)
	}
	if err := s.Repo.UpdateJobCount(id, count); err != nil {
		return err
	}
	s.Logger.Info("Job count updated", "job_id", id, "count", count)
	return nil
}

// DeleteJob removes the job and its downloads and cancels their transfers.
// Files are left to the garbage collector.
func (s *JobService) DeleteJob(id string) error {
	downloads, err := s.Repo.ListDownloadsByJob(id)
	if err != nil {
		return fmt.Errorf("failed to list downloads: %w", err)
	}
	if err := s.Repo.DeleteJob(id); err != nil {
		return err
	}

	for _, d := range downloads {
		if !d.HasHandle() {
			continue
		}
		if err := s.Provider.Cancel(*d.Handle); err != nil && !errors.Is(err, transfer.ErrUnknownHandle) {
			s.Logger.Warn("Failed to cancel transfer", "job_id", id, "handle", *d.Handle, "error", err)
		}
	}
	s.Logger.Info("Job deleted", "job_id", id, "downloads", len(downloads))
	return nil
}

// MarkPlaybackCompleted moves the window of every job of the active profile
// that holds the item. It returns the affected job ids.
func (s *JobService) MarkPlaybackCompleted(itemID string) ([]string, error) {
	profile, err := s.Settings.ActiveProfile()
	if err != nil {
		return nil, fmt.Errorf("failed to read active profile: %w", err)
	}
	jobs, err := s.Repo.MarkJobsPendingForItem(profile, itemID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
		if s.Cache == nil {
			continue
		}
		if err := s.Cache.Invalidate(job.MediaID, job.Kind); err != nil {
			s.Logger.Warn("Failed to invalidate metadata", "job_id", job.ID, "error", err)
		}
	}
	if len(ids) > 0 {
		s.Logger.Info("Playback completed, jobs flagged for re-plan", "item_id", itemID, "jobs", len(ids))
	}
	return ids, nil
}

// ListJobs projects the active profile's jobs.
func (s *JobService) ListJobs() ([]domain.UIJob, error) {
	profile, err := s.Settings.ActiveProfile()
	if err != nil {
		return nil, fmt.Errorf("failed to read active profile: %w", err)
	}
	jobs, err := s.Repo.ListJobs(profile)
	if err != nil {
		return nil, err
	}
	downloads, err := s.Repo.ListDownloadsByProfile(profile)
	if err != nil {
		return nil, err
	}
	return projection.Project(jobs, downloads), nil
}

func (s *JobService) GetJob(id string) (*domain.UIJob, error) {
	job, err := s.Repo.GetJob(id)
	if err != nil {
		return nil, err
	}
	downloads, err := s.Repo.ListDownloadsByJob(id)
	if err != nil {
		return nil, err
	}
	ui := projection.Project([]*domain.Job{job}, downloads)[0]
	return &ui, nil
}

func (s *JobService) Preferences() (Preferences, error) {
	profile, err := s.Settings.ActiveProfile()
	if err != nil {
		return Preferences{}, err
	}
	metered, err := s.Settings.AllowMetered()
	if err != nil {
		return Preferences{}, err
	}
	return Preferences{ActiveProfile: profile, AllowMetered: metered}, nil
}

// SwitchProfile changes the partition the engine plans and starts for.
// Other profiles' jobs and files are left alone.
func (s *JobService) SwitchProfile(profileID string) error {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return ErrInvalidProfile
	}
	if err := s.Settings.SetActiveProfile(profileID); err != nil {
		return err
	}
	s.Logger.Info("Active profile switched", "profile_id", profileID)
	return nil
}

// SetAllowMetered applies to transfers started from now on.
func (s *JobService) SetAllowMetered(allowed bool) error {
	if err := s.Settings.SetAllowMetered(allowed); err != nil {
		return err
	}
	s.Logger.Info("Metered preference changed", "allow_metered", allowed)
	return nil
}
