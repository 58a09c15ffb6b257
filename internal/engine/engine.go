package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cesargomez89/keepoffline/internal/constants"
	"github.com/cesargomez89/keepoffline/internal/domain"
	"github.com/cesargomez89/keepoffline/internal/logger"
	"github.com/cesargomez89/keepoffline/internal/metadata"
	"github.com/cesargomez89/keepoffline/internal/metrics"
	"github.com/cesargomez89/keepoffline/internal/network"
	"github.com/cesargomez89/keepoffline/internal/storage"
	"github.com/cesargomez89/keepoffline/internal/store"
	"github.com/cesargomez89/keepoffline/internal/transfer"
)

type Options struct {
	StatusInterval time.Duration
	UpdateInterval time.Duration
	ReplanInterval time.Duration
	RetryBackoff   time.Duration
	Limits         Limits
}

func DefaultOptions() Options {
	return Options{
		StatusInterval: constants.DefaultStatusInterval,
		UpdateInterval: constants.DefaultUpdateInterval,
		ReplanInterval: constants.DefaultReplanInterval,
		RetryBackoff:   constants.DefaultRetryBackoff,
		Limits:         DefaultLimits(),
	}
}

// Engine owns the two periodic loops: the status loop reconciles transfers,
// the update loop plans jobs and collects garbage.
type Engine struct {
	db         *store.DB
	dir        *storage.Dir
	settings   Settings
	network    network.Checker
	planner    *Planner
	reconciler *Reconciler
	collector  *Collector
	logger     *logger.Logger
	status     *Loop
	update     *Loop
	now        func() time.Time
	opts       Options
	online     atomic.Bool
}

func New(db *store.DB, repo metadata.Repository, provider transfer.Provider, dir *storage.Dir,
	settings Settings, checker network.Checker, opts Options, log *logger.Logger,
) *Engine {
	if log == nil {
		log = logger.Default()
	}
	if checker == nil {
		checker = network.AlwaysOnline{}
	}
	defaults := DefaultOptions()
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = defaults.StatusInterval
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = defaults.UpdateInterval
	}
	if opts.ReplanInterval <= 0 {
		opts.ReplanInterval = defaults.ReplanInterval
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaults.RetryBackoff
	}

	e := &Engine{
		db:         db,
		dir:        dir,
		settings:   settings,
		network:    checker,
		planner:    NewPlanner(db, repo, provider, log),
		reconciler: NewReconciler(db, provider, dir, settings, opts.Limits, opts.RetryBackoff, log),
		collector:  NewCollector(db, dir, log),
		logger:     log.WithComponent("engine"),
		now:        time.Now,
		opts:       opts,
	}
	e.status = NewLoop("status", opts.StatusInterval, e.StatusTick, log)
	e.update = NewLoop("update", opts.UpdateInterval, e.UpdateTick, log)
	return e
}

// Run blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.dir.Prepare(); err != nil {
		return fmt.Errorf("failed to prepare download root: %w", err)
	}
	e.refreshNetwork(ctx)

	e.logger.Info("Engine started",
		"root", e.dir.Root(),
		"status_interval", e.opts.StatusInterval,
		"update_interval", e.opts.UpdateInterval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.update.Run(gctx)
		return nil
	})
	g.Go(func() error {
		e.status.Run(gctx)
		return nil
	})
	err := g.Wait()

	e.logger.Info("Engine stopped")
	return err
}

// Online reports the result of the last connectivity probe.
func (e *Engine) Online() bool {
	return e.online.Load()
}

func (e *Engine) refreshNetwork(ctx context.Context) bool {
	online := e.network.Online(ctx)
	if e.online.Swap(online) != online {
		e.logger.Info("Network presence changed", "online", online)
	}
	if online {
		metrics.NetworkOnline.Set(1)
	} else {
		metrics.NetworkOnline.Set(0)
	}
	return online
}

// StatusTick runs one status-loop pass.
func (e *Engine) StatusTick(ctx context.Context) {
	res, err := e.reconciler.SyncStatus(ctx, e.Online())
	if err != nil {
		e.logger.Error("Status sync failed", "error", err)
		return
	}
	if res.Started > 0 || res.Finished > 0 || res.Failed > 0 || res.Canceled > 0 {
		e.logger.Debug("Status sync",
			"queried", res.Queried,
			"started", res.Started,
			"finished", res.Finished,
			"failed", res.Failed,
			"canceled", res.Canceled,
		)
	}
}

// UpdateTick probes the network, plans jobs when online and collects
// garbage.
func (e *Engine) UpdateTick(ctx context.Context) {
	if e.refreshNetwork(ctx) {
		e.PlanJobs(ctx)
	}
	if _, err := e.collector.Collect(); err != nil {
		e.logger.Error("Garbage collection failed", "error", err)
	}
}

// PlanJobs plans every job of the active profile that needs it and returns
// how many were planned.
func (e *Engine) PlanJobs(ctx context.Context) int {
	profile, err := e.settings.ActiveProfile()
	if err != nil {
		e.logger.Error("Failed to read active profile", "error", err)
		return 0
	}
	jobs, err := e.db.ListJobs(profile)
	if err != nil {
		e.logger.Error("Failed to list jobs", "error", err)
		return 0
	}

	planned := 0
	now := e.now()
	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		if !job.NeedsPlan(now, e.opts.ReplanInterval) {
			continue
		}
		if err := e.PlanJob(ctx, job); err != nil {
			continue
		}
		planned++
	}
	return planned
}

// PlanJob plans and applies a single job. Failures leave the job pending.
func (e *Engine) PlanJob(ctx context.Context, job *domain.Job) error {
	log := e.logger.WithJob(job.ID, string(job.Kind))

	plan, err := e.planner.Plan(ctx, job)
	if err != nil {
		metrics.JobsPlannedTotal.WithLabelValues("error").Inc()
		log.Warn("Planning failed, will retry", "error", err)
		return err
	}
	if err := e.planner.Apply(ctx, job, plan); err != nil {
		switch {
		case errors.Is(err, store.ErrStalePlan):
			metrics.JobsPlannedTotal.WithLabelValues("stale").Inc()
			log.Debug("Job changed while planning, will retry")
		case errors.Is(err, domain.ErrJobNotFound):
			metrics.JobsPlannedTotal.WithLabelValues("stale").Inc()
			log.Debug("Job deleted while planning")
		default:
			metrics.JobsPlannedTotal.WithLabelValues("error").Inc()
			log.Error("Failed to apply plan", "error", err)
		}
		return err
	}

	metrics.JobsPlannedTotal.WithLabelValues("ok").Inc()
	if !plan.Empty() {
		log.Info("Job planned",
			"created", len(plan.ToCreate),
			"deleted", len(plan.ToDelete),
			"reindexed", len(plan.Reindex),
		)
	}
	return nil
}

// Collect runs the garbage collector once.
func (e *Engine) Collect() (CollectResult, error) {
	return e.collector.Collect()
}

func (e *Engine) Planner() *Planner {
	return e.planner
}

func (e *Engine) Reconciler() *Reconciler {
	return e.reconciler
}

// StatusLoop and UpdateLoop expose the schedulers for one-shot ticks.
func (e *Engine) StatusLoop() *Loop {
	return e.status
}

func (e *Engine) UpdateLoop() *Loop {
	return e.update
}
