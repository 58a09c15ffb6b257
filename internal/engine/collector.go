package engine

import (
	"github.com/cesargomez89/keepoffline/internal/constants"
	"github.com/cesargomez89/keepoffline/internal/logger"
	"github.com/cesargomez89/keepoffline/internal/metrics"
	"github.com/cesargomez89/keepoffline/internal/storage"
	"github.com/cesargomez89/keepoffline/internal/store"
)

type CollectResult struct {
	RowsDeleted  int64
	FilesDeleted int
}

// Collector removes rows without a job and files without a row. Rows go
// first so a crash never leaves a row pointing at a deleted file it did not
// expect to lose.
type Collector struct {
	db     *store.DB
	dir    *storage.Dir
	logger *logger.Logger
}

func NewCollector(db *store.DB, dir *storage.Dir, log *logger.Logger) *Collector {
	if log == nil {
		log = logger.Default()
	}
	return &Collector{
		db:     db,
		dir:    dir,
		logger: log.WithComponent("collector"),
	}
}

// Collect traces files against the downloads of every profile, so switching
// profiles never deletes another profile's files.
func (c *Collector) Collect() (CollectResult, error) {
	var res CollectResult

	rows, err := c.db.DeleteOrphanDownloads()
	if err != nil {
		return res, err
	}
	res.RowsDeleted = rows
	if rows > 0 {
		c.logger.Warn("Removed downloads without a job", "count", rows)
	}

	names, err := c.db.ListFileNames()
	if err != nil {
		return res, err
	}
	keep := make(map[string]struct{}, 2*len(names)+1)
	keep[constants.SentinelFile] = struct{}{}
	for _, name := range names {
		keep[name] = struct{}{}
		keep[storage.TempName(name)] = struct{}{}
	}

	files, err := c.dir.List()
	if err != nil {
		return res, err
	}
	for _, f := range files {
		if _, ok := keep[f]; ok {
			continue
		}
		if err := c.dir.Remove(f); err != nil {
			c.logger.Warn("Failed to remove untracked file", "file", f, "error", err)
			continue
		}
		res.FilesDeleted++
		c.logger.Debug("Removed untracked file", "file", f)
	}
	metrics.FilesCollectedTotal.Add(float64(res.FilesDeleted))

	if _, err := c.db.PurgeExpiredCache(); err != nil {
		c.logger.Warn("Failed to purge metadata cache", "error", err)
	}
	return res, nil
}
