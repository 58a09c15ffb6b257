package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cesargomez89/keepoffline/internal/domain"
	"github.com/cesargomez89/keepoffline/internal/logger"
)

func TestLoop_SkipsWhileBusy(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int32

	l := NewLoop("test", time.Hour, func(ctx context.Context) {
		calls.Add(1)
		started <- struct{}{}
		<-release
	}, logger.Discard())

	done := make(chan bool)
	go func() { done <- l.RunOnce(context.Background()) }()
	<-started

	if l.RunOnce(context.Background()) {
		t.Error("tick should be skipped while the previous one runs")
	}
	close(release)
	if !<-done {
		t.Error("first tick should have run")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
}

func TestLoop_RecoversFromPanic(t *testing.T) {
	var calls atomic.Int32
	l := NewLoop("panicky", time.Hour, func(ctx context.Context) {
		calls.Add(1)
		panic("boom")
	}, logger.Discard())

	if !l.RunOnce(context.Background()) {
		t.Fatal("tick should run")
	}
	if !l.RunOnce(context.Background()) {
		t.Fatal("loop must be usable after a panic")
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
}

func TestLoop_RunNeverOverlaps(t *testing.T) {
	var running, maxRunning, calls atomic.Int32
	l := NewLoop("overlap", 2*time.Millisecond, func(ctx context.Context) {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		calls.Add(1)
		time.Sleep(15 * time.Millisecond)
		running.Add(-1)
	}, logger.Discard())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	l.Run(ctx)

	if maxRunning.Load() != 1 {
		t.Errorf("ticks overlapped: max concurrent %d", maxRunning.Load())
	}
	if calls.Load() == 0 || calls.Load() > 10 {
		t.Errorf("unexpected number of ticks %d", calls.Load())
	}
	if running.Load() != 0 {
		t.Error("Run must wait for the in-flight tick")
	}
}

func TestEngine_Run(t *testing.T) {
	h := newHarness(t)
	h.repo.Set(videoOnlyMovie("m1"))
	h.addJob(t, "job", "m1", domain.MediaKindMovie, 1)

	opts := DefaultOptions()
	opts.StatusInterval = 5 * time.Millisecond
	opts.UpdateInterval = 10 * time.Millisecond
	e := New(h.db, h.repo, h.provider, h.dir, h.settings, h.net, opts, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if handles, _ := h.provider.Handles(); len(handles) == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop")
	}

	if handles, _ := h.provider.Handles(); len(handles) != 1 {
		t.Errorf("Expected the engine to start one transfer, got %v", handles)
	}
	if !e.Online() {
		t.Error("engine should report online")
	}
}
