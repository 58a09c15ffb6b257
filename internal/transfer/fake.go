package transfer

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
)

// FakeTransfer is the bookkeeping the Fake keeps per handle.
type FakeTransfer struct {
	URL          string
	DestPath     string
	AllowMetered bool
	Snapshot     Snapshot
}

// Fake is an in-memory Provider driven by tests. Transfers stay pending
// until the test moves them along.
type Fake struct {
	transfers  map[string]*FakeTransfer
	EnqueueErr error
	Canceled   []string
	mu         sync.Mutex
	seq        int
}

func NewFake() *Fake {
	return &Fake{transfers: make(map[string]*FakeTransfer)}
}

func (f *Fake) Enqueue(ctx context.Context, url, destPath string, allowMetered bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EnqueueErr != nil {
		return "", f.EnqueueErr
	}
	f.seq++
	handle := fmt.Sprintf("fake-%d", f.seq)
	f.transfers[handle] = &FakeTransfer{
		URL:          url,
		DestPath:     destPath,
		AllowMetered: allowMetered,
		Snapshot:     Snapshot{State: StatePending},
	}
	return handle, nil
}

func (f *Fake) Query(handle string) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transfers[handle]
	if !ok {
		return Snapshot{}, ErrUnknownHandle
	}
	return t.Snapshot, nil
}

func (f *Fake) Cancel(handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Canceled = append(f.Canceled, handle)
	if _, ok := f.transfers[handle]; !ok {
		return ErrUnknownHandle
	}
	delete(f.transfers, handle)
	return nil
}

func (f *Fake) Handles() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	handles := make([]string, 0, len(f.transfers))
	for h := range f.transfers {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles, nil
}

// Get returns a copy of the transfer behind handle.
func (f *Fake) Get(handle string) (FakeTransfer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transfers[handle]
	if !ok {
		return FakeTransfer{}, false
	}
	return *t, true
}

// Transfers returns copies of all held transfers keyed by handle.
func (f *Fake) Transfers() map[string]FakeTransfer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]FakeTransfer, len(f.transfers))
	for h, t := range f.transfers {
		out[h] = *t
	}
	return out
}

// Set replaces the snapshot reported for handle.
func (f *Fake) Set(handle string, snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.transfers[handle]; ok {
		t.Snapshot = snap
	}
}

// Complete writes data to the destination and reports success.
func (f *Fake) Complete(handle string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transfers[handle]
	if !ok {
		return ErrUnknownHandle
	}
	if err := os.WriteFile(t.DestPath, data, 0o644); err != nil {
		return err
	}
	size := int64(len(data))
	t.Snapshot = Snapshot{State: StateSuccessful, TotalBytes: size, TransferredBytes: size}
	return nil
}

// Inject registers a transfer the engine never asked for.
func (f *Fake) Inject(handle string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers[handle] = &FakeTransfer{Snapshot: Snapshot{State: StateRunning}}
}

// Forget drops a transfer without canceling it, as a restarted provider would.
func (f *Fake) Forget(handle string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.transfers, handle)
}
