package engine

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cesargomez89/keepoffline/internal/constants"
	"github.com/cesargomez89/keepoffline/internal/domain"
	"github.com/cesargomez89/keepoffline/internal/logger"
	"github.com/cesargomez89/keepoffline/internal/metadata"
	"github.com/cesargomez89/keepoffline/internal/network"
	"github.com/cesargomez89/keepoffline/internal/storage"
	"github.com/cesargomez89/keepoffline/internal/store"
	"github.com/cesargomez89/keepoffline/internal/transfer"
)

type harness struct {
	db       *store.DB
	dir      *storage.Dir
	repo     *metadata.MockRepository
	provider *transfer.Fake
	settings *store.SettingsRepo
	net      *network.Static
	engine   *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	db, err := store.NewSQLiteDB(filepath.Join(root, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	dir := storage.NewDir(filepath.Join(root, "downloads"))
	if err := dir.Prepare(); err != nil {
		t.Fatalf("Failed to prepare dir: %v", err)
	}

	h := &harness{
		db:       db,
		dir:      dir,
		repo:     metadata.NewMockRepository(),
		provider: transfer.NewFake(),
		settings: store.NewSettingsRepo(db),
		net:      network.NewStatic(true),
	}
	h.engine = New(db, h.repo, h.provider, dir, h.settings, h.net, DefaultOptions(), logger.Discard())
	h.engine.refreshNetwork(t.Context())
	return h
}

func (h *harness) addJob(t *testing.T, id, mediaID string, kind domain.MediaKind, count int) *domain.Job {
	t.Helper()
	now := time.Now()
	job := &domain.Job{
		ID:        id,
		MediaID:   mediaID,
		Kind:      kind,
		ProfileID: constants.DefaultProfile,
		Count:     count,
		Pending:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.db.CreateJob(job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	return h.job(t, id)
}

func (h *harness) job(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := h.db.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	return job
}

func (h *harness) downloads(t *testing.T, jobID string) []*domain.Download {
	t.Helper()
	downloads, err := h.db.ListDownloadsByJob(jobID)
	if err != nil {
		t.Fatalf("ListDownloadsByJob failed: %v", err)
	}
	return downloads
}

func (h *harness) find(t *testing.T, jobID, itemID string, d domain.Disposition) *domain.Download {
	t.Helper()
	for _, dl := range h.downloads(t, jobID) {
		if dl.ItemID == itemID && dl.Disposition == d {
			return dl
		}
	}
	return nil
}

func (h *harness) plan(t *testing.T, jobID string) {
	t.Helper()
	if err := h.engine.PlanJob(t.Context(), h.job(t, jobID)); err != nil {
		t.Fatalf("PlanJob failed: %v", err)
	}
}

func (h *harness) statusTick(t *testing.T) {
	t.Helper()
	if !h.engine.StatusLoop().RunOnce(t.Context()) {
		t.Fatal("status tick unexpectedly skipped")
	}
}

// completeAll finishes every transfer the fake still reports as unfinished.
func (h *harness) completeAll(t *testing.T) int {
	t.Helper()
	n := 0
	for handle, tr := range h.provider.Transfers() {
		if tr.Snapshot.State == transfer.StateSuccessful {
			continue
		}
		if err := h.provider.Complete(handle, []byte("data-"+handle)); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
		n++
	}
	return n
}

// assertFinishedFilesExist checks that no download is Finished without its
// file on disk.
func (h *harness) assertFinishedFilesExist(t *testing.T) {
	t.Helper()
	all, err := h.db.ListAllDownloads()
	if err != nil {
		t.Fatal(err)
	}
	for _, d := range all {
		if d.Status != domain.DownloadStatusFinished {
			continue
		}
		if size, ok := h.dir.Size(d.FileName); !ok || size == 0 {
			t.Errorf("download %d finished without file %s", d.ID, d.FileName)
		}
	}
}

// assertVideoInFlightAtMostOne checks the single-video invariant.
func (h *harness) assertVideoInFlightAtMostOne(t *testing.T) {
	t.Helper()
	all, err := h.db.ListAllDownloads()
	if err != nil {
		t.Fatal(err)
	}
	running, inFlight := 0, 0
	for _, d := range all {
		if !d.Disposition.IsVideo() {
			continue
		}
		if d.Status == domain.DownloadStatusRunning {
			running++
		}
		if d.InFlight() {
			inFlight++
		}
	}
	if running > 1 || inFlight > 1 {
		t.Errorf("video transfers running=%d in flight=%d, want at most 1", running, inFlight)
	}
}

func (h *harness) transfersByClass(t *testing.T) map[string]int {
	t.Helper()
	handles, err := h.db.ListHandles()
	if err != nil {
		t.Fatal(err)
	}
	out := map[string]int{}
	for _, id := range handles {
		d, err := h.db.GetDownload(id)
		if err != nil || d == nil {
			t.Fatalf("GetDownload(%d) = %v, %v", id, d, err)
		}
		out[d.Disposition.Class()]++
	}
	return out
}

func movieFixture(id string) *domain.DetailedMedia {
	base := "http://cdn.test/" + id
	return &domain.DetailedMedia{MediaItem: domain.MediaItem{
		ID:                id,
		Kind:              domain.MediaKindMovie,
		Title:             "Movie " + id,
		PosterURL:         base + "/poster.jpg",
		BackdropURL:       base + "/backdrop.jpg",
		ThumbnailIndexURL: base + "/thumbs.bif",
		VideoURL:          base + "/video.mp4",
		Subtitles:         []domain.Subtitle{{Name: "en", URL: base + "/en.vtt"}},
		Playback:          domain.PlaybackSnapshot{PositionSeconds: 42},
	}}
}

// videoOnlyMovie has a single downloadable file.
func videoOnlyMovie(id string) *domain.DetailedMedia {
	return &domain.DetailedMedia{MediaItem: domain.MediaItem{
		ID:       id,
		Kind:     domain.MediaKindMovie,
		VideoURL: "http://cdn.test/" + id + "/video.mp4",
	}}
}

func seriesFixture(id string, episodes, upNext int, withPosters bool) *domain.DetailedMedia {
	media := &domain.DetailedMedia{MediaItem: domain.MediaItem{
		ID:   id,
		Kind: domain.MediaKindSeries,
	}}
	if withPosters {
		media.PosterURL = "http://cdn.test/" + id + "/poster.jpg"
	}
	for i := 0; i < episodes; i++ {
		epID := fmt.Sprintf("%s-e%d", id, i+1)
		item := domain.MediaItem{
			ID:       epID,
			Kind:     domain.MediaKindEpisode,
			Index:    i,
			VideoURL: "http://cdn.test/" + epID + "/video.mp4",
			UpNext:   i == upNext,
		}
		if withPosters {
			item.PosterURL = "http://cdn.test/" + epID + "/poster.jpg"
		}
		media.Items = append(media.Items, item)
	}
	return media
}
