package transport

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory transport for tests. It is safe for concurrent use and
// records the order of delete calls.
type Fake struct {
	mu sync.Mutex

	listings    map[string][]string
	listErr     map[string]error
	deleteErr   map[string]error
	missing     map[string]bool
	deleted     []string
	listCalls   int
	deleteCalls int
}

// NewFake returns an empty fake transport.
func NewFake() *Fake {
	return &Fake{
		listings:  map[string][]string{},
		listErr:   map[string]error{},
		deleteErr: map[string]error{},
		missing:   map[string]bool{},
	}
}

func key(host, dataset string) string { return host + "/" + dataset }

// SetListing scripts the listing of one dataset.
func (f *Fake) SetListing(host, dataset string, lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings[key(host, dataset)] = lines
}

// SetListError makes List fail for one dataset.
func (f *Fake) SetListError(host, dataset string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr[key(host, dataset)] = err
}

// SetDeleteError makes Delete fail for one snapshot.
func (f *Fake) SetDeleteError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErr[name] = err
}

// SetMissing makes Delete report the snapshot as already absent.
func (f *Fake) SetMissing(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.missing[name] = true
}

func (f *Fake) List(ctx context.Context, host, dataset string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if err := f.listErr[key(host, dataset)]; err != nil {
		return nil, err
	}
	return append([]string(nil), f.listings[key(host, dataset)]...), nil
}

func (f *Fake) Delete(ctx context.Context, host, dataset, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.missing[name] {
		return ErrSnapshotNotFound
	}
	if err := f.deleteErr[name]; err != nil {
		return fmt.Errorf("fake delete %s/%s/%s: %w", host, dataset, name, err)
	}
	f.deleted = append(f.deleted, name)
	return nil
}

// Deleted returns the names deleted so far, in call order.
func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// ListCalls returns how many List calls were made.
func (f *Fake) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// DeleteCalls returns how many Delete calls were made.
func (f *Fake) DeleteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteCalls
}
