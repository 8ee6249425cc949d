package datasets_test

import (
	"context"
	"sync"

	"github.com/driftweb/crawlindex/internal/datasets"
)

// fakeLocker is a non-FIFO stand-in for sqlite.Locker adequate for
// single-goroutine mutation tests: real fairness is covered by the sqlite
// package's own Locker tests.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[string]*sync.Mutex)}
}

func (f *fakeLocker) Lock(ctx context.Context, name string) (func(), error) {
	f.mu.Lock()
	m, ok := f.locks[name]
	if !ok {
		m = &sync.Mutex{}
		f.locks[name] = m
	}
	f.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}

// fakeCrawlRequests records every enqueued origin, standing in for
// queue.GoqiteQueue in tests of the write -> re-crawl mailbox.
type fakeCrawlRequests struct {
	mu        sync.Mutex
	enqueued  []string
	returnErr error
}

func newFakeCrawlRequests() *fakeCrawlRequests {
	return &fakeCrawlRequests{}
}

func (f *fakeCrawlRequests) Enqueue(ctx context.Context, origin string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.returnErr != nil {
		return f.returnErr
	}
	f.enqueued = append(f.enqueued, origin)
	return nil
}

var _ datasets.NamedLocker = (*fakeLocker)(nil)
var _ datasets.CrawlRequests = (*fakeCrawlRequests)(nil)
