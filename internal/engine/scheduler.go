package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cesargomez89/keepoffline/internal/logger"
	"github.com/cesargomez89/keepoffline/internal/metrics"
)

// Loop runs fn periodically. A tick that fires while the previous one is
// still running is dropped, not queued.
type Loop struct {
	fn       func(ctx context.Context)
	logger   *logger.Logger
	name     string
	interval time.Duration
	wg       sync.WaitGroup
	busy     atomic.Bool
}

func NewLoop(name string, interval time.Duration, fn func(ctx context.Context), log *logger.Logger) *Loop {
	if log == nil {
		log = logger.Default()
	}
	return &Loop{
		fn:       fn,
		logger:   log.WithComponent("scheduler").WithLoop(name),
		name:     name,
		interval: interval,
	}
}

// RunOnce runs a tick synchronously and reports false if it was skipped.
func (l *Loop) RunOnce(ctx context.Context) bool {
	if !l.busy.CompareAndSwap(false, true) {
		metrics.TicksSkippedTotal.WithLabelValues(l.name).Inc()
		return false
	}
	defer l.busy.Store(false)
	l.tick(ctx)
	return true
}

// Run ticks immediately and then every interval until ctx is done, then
// waits for the in-flight tick.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	defer l.wg.Wait()

	l.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.dispatch(ctx)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context) {
	if !l.busy.CompareAndSwap(false, true) {
		metrics.TicksSkippedTotal.WithLabelValues(l.name).Inc()
		l.logger.Debug("Tick skipped, previous still running")
		return
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.busy.Store(false)
		l.tick(ctx)
	}()
}

func (l *Loop) tick(ctx context.Context) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Tick panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
		metrics.TickDuration.WithLabelValues(l.name).Observe(time.Since(start).Seconds())
	}()
	l.fn(ctx)
}
