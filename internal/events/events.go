// Package events implements the Coordinator's event stream: a
// multi-producer broadcast bus with dropped-on-slow-consumer semantics,
// per Design Notes §9 ("model as a multi-producer broadcast with
// dropped-on-slow-consumer semantics; never as a durable log"). Grounded
// on the teacher's events.Service subscribe/publish shape, reshaped from
// handler callbacks to buffered channels so a stalled subscriber cannot
// block a crawl.
package events

import (
	"sync"

	"github.com/ternarybob/arbor"
)

// Kind enumerates the Coordinator event names from spec.md §4.1.
type Kind string

const (
	KindWatch               Kind = "watch"
	KindUnwatch              Kind = "unwatch"
	KindCrawlStart           Kind = "crawl-start"
	KindCrawlFinish          Kind = "crawl-finish"
	KindCrawlError           Kind = "crawl-error"
	KindCrawlDNSChange       Kind = "crawl-dns-change"
	KindCrawlDatasetStart    Kind = "crawl-dataset-start"
	KindCrawlDatasetProgress Kind = "crawl-dataset-progress"
	KindCrawlDatasetFinish   Kind = "crawl-dataset-finish"

	// Record-level events fired by dataset ingesters as they apply each
	// diff entry (spec.md §4.3.1's "<kind>-added"/"<kind>-updated"/
	// "<kind>-removed"). Dataset on the Event carries the dataset tag
	// ("posts", "bookmarks", ...) so one Kind set covers every dataset.
	KindRecordAdded   Kind = "record-added"
	KindRecordUpdated Kind = "record-updated"
	KindRecordRemoved Kind = "record-removed"
)

// Event is one broadcast message. Fields beyond Kind/SourceURL are
// populated as applicable per Kind; consumers switch on Kind.
type Event struct {
	Kind      Kind
	SourceURL string
	Dataset   string
	Err       error
	Range     [2]int64 // [start,end) version window, for crawl-dataset-start
	Progress  int
	Total     int
	Pathname  string // archive path, for record-level events
}

// subscriberBuffer bounds how many unread events a slow consumer can
// accumulate before new events are dropped for it.
const subscriberBuffer = 64

// Bus is a broadcast event bus: every Publish fans out to every current
// subscriber channel, non-blocking.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	logger      arbor.ILogger
}

// NewBus constructs an empty event bus.
func NewBus(logger arbor.ILogger) *Bus {
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
		logger:      logger,
	}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function. Callers must drain the channel or call unsubscribe
// to avoid leaking it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish fans an event out to every subscriber, best-effort: a subscriber
// whose buffer is full has this event dropped for it rather than blocking
// the publisher (the Coordinator's crawl loop).
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			if b.logger != nil {
				b.logger.Warn().Str("kind", string(event.Kind)).Str("source", event.SourceURL).
					Msg("event dropped, subscriber buffer full")
			}
		}
	}
}
