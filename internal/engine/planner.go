package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cesargomez89/keepoffline/internal/domain"
	"github.com/cesargomez89/keepoffline/internal/logger"
	"github.com/cesargomez89/keepoffline/internal/metadata"
	"github.com/cesargomez89/keepoffline/internal/storage"
	"github.com/cesargomez89/keepoffline/internal/store"
	"github.com/cesargomez89/keepoffline/internal/transfer"
)

// ArtworkSortIndex places the job's own artwork ahead of every item.
const ArtworkSortIndex = -1

// Plan is the diff between a job's desired set and its stored downloads.
type Plan struct {
	Reindex  map[int64]int
	ToCreate []*domain.Download
	ToDelete []*domain.Download
}

func (p *Plan) Empty() bool {
	return len(p.ToCreate) == 0 && len(p.ToDelete) == 0 && len(p.Reindex) == 0
}

// Planner computes and applies desired download sets.
type Planner struct {
	db       *store.DB
	repo     metadata.Repository
	provider transfer.Provider
	logger   *logger.Logger
	now      func() time.Time
}

func NewPlanner(db *store.DB, repo metadata.Repository, provider transfer.Provider, log *logger.Logger) *Planner {
	if log == nil {
		log = logger.Default()
	}
	return &Planner{
		db:       db,
		repo:     repo,
		provider: provider,
		logger:   log.WithComponent("planner"),
		now:      time.Now,
	}
}

// Plan fetches the job's metadata and diffs the desired set against the
// stored downloads. It writes nothing.
func (p *Planner) Plan(ctx context.Context, job *domain.Job) (*Plan, error) {
	media, err := p.repo.GetDetails(ctx, job.MediaID, job.Kind)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}

	window, err := Window(job, media)
	if err != nil {
		return nil, err
	}

	existing, err := p.db.ListDownloadsByJob(job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}

	return diff(job, Desired(job, media, window), existing), nil
}

// Apply writes the plan, marks the job planned and cancels the transfers of
// removed rows.
func (p *Planner) Apply(ctx context.Context, job *domain.Job, plan *Plan) error {
	changes := store.PlanChanges{
		Create:  plan.ToCreate,
		Reindex: plan.Reindex,
	}
	for _, d := range plan.ToDelete {
		changes.Delete = append(changes.Delete, d.ID)
	}

	released, err := p.db.ApplyPlan(ctx, job, changes, p.now())
	if err != nil {
		return err
	}

	for _, handle := range released {
		if err := p.provider.Cancel(handle); err != nil && !errors.Is(err, transfer.ErrUnknownHandle) {
			p.logger.Warn("Failed to cancel removed transfer", "handle", handle, "error", err)
		}
	}
	return nil
}

// Window selects the items a job keeps locally, up-next first.
func Window(job *domain.Job, media *domain.DetailedMedia) ([]domain.MediaItem, error) {
	switch job.Kind {
	case domain.MediaKindMovie, domain.MediaKindEpisode:
		item := media.MediaItem
		if item.ID == "" {
			item.ID = job.MediaID
		}
		if item.Kind == "" {
			item.Kind = job.Kind
		}
		return []domain.MediaItem{item}, nil
	case domain.MediaKindSeries, domain.MediaKindPlaylist:
		return collectionWindow(media.Items, job.Count), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedKind, job.Kind)
	}
}

// collectionWindow walks forward from the up-next item, or the first item when
// none is flagged, collecting up to count distinct media ids. Items sharing an
// index keep their source order.
func collectionWindow(items []domain.MediaItem, count int) []domain.MediaItem {
	ordered := make([]domain.MediaItem, len(items))
	copy(ordered, items)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Index < ordered[j].Index
	})

	start := 0
	for i, item := range ordered {
		if item.UpNext {
			start = i
			break
		}
	}

	window := make([]domain.MediaItem, 0, count)
	seen := make(map[string]struct{}, count)
	for _, item := range ordered[start:] {
		if len(window) >= count {
			break
		}
		if _, ok := seen[item.ID]; ok {
			continue
		}
		seen[item.ID] = struct{}{}
		window = append(window, item)
	}
	return window
}

// Desired expands the window into one download per file, preceded by the
// job's own artwork record.
func Desired(job *domain.Job, media *domain.DetailedMedia, window []domain.MediaItem) []*domain.Download {
	var out []*domain.Download
	seen := make(map[domain.DownloadKey]struct{})
	add := func(index int, item domain.MediaItem, d domain.Disposition, url string, playback domain.PlaybackSnapshot) {
		if url == "" {
			return
		}
		key := domain.DownloadKey{ItemID: item.ID, Disposition: d}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, &domain.Download{
			JobID:       job.ID,
			SortIndex:   index,
			ItemID:      item.ID,
			ItemKind:    item.Kind,
			Disposition: d,
			URL:         url,
			FileName:    storage.FileName(job.ID, item.ID, d, url),
			Status:      domain.DownloadStatusPending,
			Playback:    playback,
		})
	}

	artwork := media.PosterURL
	if artwork == "" {
		artwork = job.ArtworkURL
	}
	add(ArtworkSortIndex, domain.MediaItem{ID: job.MediaID, Kind: job.Kind}, domain.DispositionPoster, artwork, domain.PlaybackSnapshot{})

	for i, item := range window {
		if item.Kind == "" {
			item.Kind = domain.MediaKindEpisode
		}
		add(i, item, domain.DispositionVideo, item.VideoURL, item.Playback)
		add(i, item, domain.DispositionPoster, item.PosterURL, domain.PlaybackSnapshot{})
		add(i, item, domain.DispositionBackdrop, item.BackdropURL, domain.PlaybackSnapshot{})
		add(i, item, domain.DispositionPreview, item.PreviewURL, domain.PlaybackSnapshot{})
		add(i, item, domain.DispositionThumbnails, item.ThumbnailIndexURL, domain.PlaybackSnapshot{})
		taken := make(map[domain.Disposition]string)
		for _, sub := range item.Subtitles {
			if sub.URL == "" {
				continue
			}
			// Tracks sharing a name get a numeric suffix; the same URL twice is one track.
			d := domain.SubtitleDisposition(sub.Name)
			for n := 2; ; n++ {
				url, ok := taken[d]
				if !ok || url == sub.URL {
					break
				}
				d = domain.SubtitleDisposition(fmt.Sprintf("%s-%d", sub.Name, n))
			}
			taken[d] = sub.URL
			add(i, item, d, sub.URL, domain.PlaybackSnapshot{})
		}
	}
	return out
}

func diff(job *domain.Job, desired, existing []*domain.Download) *Plan {
	plan := &Plan{Reindex: make(map[int64]int)}

	want := make(map[domain.DownloadKey]*domain.Download, len(desired))
	for _, d := range desired {
		want[d.Key()] = d
	}

	have := make(map[domain.DownloadKey]struct{}, len(existing))
	for _, d := range existing {
		have[d.Key()] = struct{}{}
		target, ok := want[d.Key()]
		switch {
		case ok:
			if d.SortIndex != target.SortIndex {
				plan.Reindex[d.ID] = target.SortIndex
			}
		case d.IsJobArtwork(job):
		default:
			plan.ToDelete = append(plan.ToDelete, d)
		}
	}

	for _, d := range desired {
		if _, ok := have[d.Key()]; !ok {
			plan.ToCreate = append(plan.ToCreate, d)
		}
	}
	return plan
}
