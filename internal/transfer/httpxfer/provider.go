// Package httpxfer is a Transfer Provider that fetches files over plain HTTP
// in background goroutines.
package httpxfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"

	"github.com/cesargomez89/keepoffline/internal/constants"
	"github.com/cesargomez89/keepoffline/internal/logger"
	"github.com/cesargomez89/keepoffline/internal/transfer"
)

// ErrStalled cancels a transfer that received no bytes for StallTimeout.
var ErrStalled = errors.New("transfer stalled")

type Options struct {
	MaxRetries int
	RetryDelay time.Duration
	MaxDelay   time.Duration
	// StallTimeout bounds the wait for response headers and for each body
	// read. It is raised to at least twice MaxDelay so retry backoff never
	// trips it.
	StallTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:   constants.DefaultRetryCount,
		RetryDelay:   constants.DefaultRetryBase,
		MaxDelay:     constants.DefaultRetryMaxDelay,
		StallTimeout: constants.DefaultStallTimeout,
	}
}

type job struct {
	cancel context.CancelFunc
	snap   transfer.Snapshot
	mu     sync.Mutex
}

func (j *job) snapshot() transfer.Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap
}

func (j *job) update(fn func(s *transfer.Snapshot)) {
	j.mu.Lock()
	fn(&j.snap)
	j.mu.Unlock()
}

func (j *job) fail(reason transfer.FailureReason) {
	j.update(func(s *transfer.Snapshot) {
		s.State = transfer.StateFailed
		s.Pause = transfer.PauseNone
		s.Failure = reason
	})
}

// Provider keeps transfers in memory; a process restart forgets them and the
// engine re-issues the affected downloads.
type Provider struct {
	client *http.Client
	log    *logger.Logger
	stall  time.Duration
	policy retrypolicy.RetryPolicy[*http.Response]
	ctx    context.Context
	stop   context.CancelFunc
	jobs   map[string]*job
	mu     sync.Mutex
	wg     sync.WaitGroup
}

func New(client *http.Client, log *logger.Logger, opts Options) *Provider {
	if client == nil {
		// No overall timeout: large files stream for as long as they need.
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       30 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		}
	}
	if log == nil {
		log = logger.Default()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = constants.DefaultRetryBase
	}
	if opts.MaxDelay < opts.RetryDelay {
		opts.MaxDelay = opts.RetryDelay
	}
	if opts.StallTimeout <= 0 {
		opts.StallTimeout = constants.DefaultStallTimeout
	}
	if opts.StallTimeout < 2*opts.MaxDelay {
		opts.StallTimeout = 2 * opts.MaxDelay
	}

	policy := retrypolicy.NewBuilder[*http.Response]().
		AbortIf(func(_ *http.Response, err error) bool {
			return errors.Is(err, context.Canceled)
		}).
		WithMaxRetries(opts.MaxRetries).
		WithBackoff(opts.RetryDelay, opts.MaxDelay).
		ReturnLastFailure().
		Build()

	ctx, stop := context.WithCancel(context.Background())
	return &Provider{
		client: client,
		log:    log.WithComponent("httpxfer"),
		stall:  opts.StallTimeout,
		policy: policy,
		ctx:    ctx,
		stop:   stop,
		jobs:   make(map[string]*job),
	}
}

// Enqueue starts fetching url into destPath. allowMetered is accepted for
// interface compatibility; plain HTTP cannot tell metered links apart.
func (p *Provider) Enqueue(ctx context.Context, url, destPath string, allowMetered bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := p.ctx.Err(); err != nil {
		return "", fmt.Errorf("provider closed: %w", err)
	}

	handle := uuid.NewString()
	jctx, cancel := context.WithCancel(p.ctx)
	j := &job{
		cancel: cancel,
		snap:   transfer.Snapshot{State: transfer.StatePending},
	}

	p.mu.Lock()
	p.jobs[handle] = j
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(jctx, handle, j, url, destPath)

	return handle, nil
}

func (p *Provider) Query(handle string) (transfer.Snapshot, error) {
	p.mu.Lock()
	j, ok := p.jobs[handle]
	p.mu.Unlock()
	if !ok {
		return transfer.Snapshot{}, transfer.ErrUnknownHandle
	}
	return j.snapshot(), nil
}

// Cancel stops the transfer and forgets the handle. A finished transfer is
// only forgotten.
func (p *Provider) Cancel(handle string) error {
	p.mu.Lock()
	j, ok := p.jobs[handle]
	delete(p.jobs, handle)
	p.mu.Unlock()
	if !ok {
		return transfer.ErrUnknownHandle
	}
	j.cancel()
	return nil
}

func (p *Provider) Handles() ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	handles := make([]string, 0, len(p.jobs))
	for h := range p.jobs {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles, nil
}

// Close cancels every transfer and waits for the goroutines to exit.
func (p *Provider) Close() {
	p.stop()
	p.wg.Wait()
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// watchdog cancels its context with ErrStalled unless kicked within d.
type watchdog struct {
	timer *time.Timer
	d     time.Duration
}

func newWatchdog(d time.Duration, cancel context.CancelCauseFunc) *watchdog {
	return &watchdog{
		timer: time.AfterFunc(d, func() { cancel(ErrStalled) }),
		d:     d,
	}
}

func (w *watchdog) kick() {
	w.timer.Reset(w.d)
}

func (w *watchdog) stop() {
	w.timer.Stop()
}

func (p *Provider) run(parent context.Context, handle string, j *job, url, destPath string) {
	defer p.wg.Done()
	log := p.log.With("handle", handle)

	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	wd := newWatchdog(p.stall, cancel)
	defer wd.stop()

	resp, err := failsafe.With[*http.Response](p.policy).WithContext(ctx).Get(func() (*http.Response, error) {
		wd.kick()
		j.update(func(s *transfer.Snapshot) {
			s.State = transfer.StateRunning
			s.Pause = transfer.PauseNone
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			j.update(func(s *transfer.Snapshot) {
				s.State = transfer.StatePaused
				s.Pause = pauseReason(err)
			})
			return nil, err
		}
		if retryableStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			j.update(func(s *transfer.Snapshot) {
				s.State = transfer.StatePaused
				s.Pause = transfer.PauseWaitingToRetry
			})
			return nil, &statusError{code: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		if parent.Err() != nil {
			return
		}
		if stalled(ctx) {
			log.Warn("Transfer got no response", "timeout", p.stall)
			j.fail(transfer.FailureUnknown)
			return
		}
		log.Warn("Transfer request failed", "error", err)
		j.fail(classify(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("Transfer rejected by server", "status", resp.StatusCode)
		j.fail(transfer.FailureUnsupportedHTTP)
		return
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	j.update(func(s *transfer.Snapshot) { s.TotalBytes = total })

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, constants.FilePermissions)
	if err != nil {
		log.Warn("Failed to open destination", "path", destPath, "error", err)
		j.fail(classify(err))
		return
	}

	wd.kick()
	written, err := io.Copy(f, &progressReader{r: resp.Body, j: j, wd: wd})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(destPath)
		if parent.Err() != nil {
			return
		}
		if stalled(ctx) {
			log.Warn("Transfer stalled", "timeout", p.stall)
			j.fail(transfer.FailureDataError)
			return
		}
		log.Warn("Transfer interrupted", "error", err)
		j.fail(classify(err))
		return
	}
	if total > 0 && written != total {
		log.Warn("Transfer size mismatch", "expected", total, "written", written)
		j.fail(transfer.FailureDataError)
		return
	}

	j.update(func(s *transfer.Snapshot) {
		s.State = transfer.StateSuccessful
		s.Pause = transfer.PauseNone
		s.TotalBytes = written
		s.TransferredBytes = written
	})
}

func stalled(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrStalled)
}

type progressReader struct {
	r  io.Reader
	j  *job
	wd *watchdog
}

func (pr *progressReader) Read(b []byte) (int, error) {
	n, err := pr.r.Read(b)
	if n > 0 {
		pr.wd.kick()
		pr.j.update(func(s *transfer.Snapshot) { s.TransferredBytes += int64(n) })
	}
	return n, err
}

func pauseReason(err error) transfer.PauseReason {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return transfer.PauseWaitingForNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return transfer.PauseWaitingForNetwork
	}
	return transfer.PauseWaitingToRetry
}

func classify(err error) transfer.FailureReason {
	var se *statusError
	switch {
	case errors.Is(err, syscall.ENOSPC):
		return transfer.FailureInsufficientSpace
	case errors.Is(err, fs.ErrNotExist):
		return transfer.FailureStorageMissing
	case errors.Is(err, fs.ErrExist):
		return transfer.FailureFileExists
	case errors.Is(err, io.ErrUnexpectedEOF):
		return transfer.FailureDataError
	case errors.As(err, &se):
		return transfer.FailureUnsupportedHTTP
	default:
		return transfer.FailureUnknown
	}
}
