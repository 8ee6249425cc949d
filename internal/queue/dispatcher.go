package queue

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
)

// Crawler is the minimal Coordinator surface the dispatcher depends on,
// kept narrow to avoid an import cycle between internal/queue and
// internal/coordinator.
type Crawler interface {
	CrawlOrigin(ctx context.Context, origin string) error
}

// Dispatcher drains a CrawlRequests mailbox and calls Crawler.CrawlOrigin
// for each request, decoupling a writer's call stack from the per-archive
// lock (SPEC_FULL.md §6).
type Dispatcher struct {
	requests CrawlRequests
	crawler  Crawler
	logger   arbor.ILogger
	interval time.Duration
}

// NewDispatcher constructs a dispatcher polling requests every interval.
func NewDispatcher(requests CrawlRequests, crawler Crawler, logger arbor.ILogger, interval time.Duration) *Dispatcher {
	if interval <= 0 {
		interval = time.Second
	}
	return &Dispatcher{requests: requests, crawler: crawler, logger: logger, interval: interval}
}

// Run drains the mailbox until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainOnce(ctx)
		}
	}
}

func (d *Dispatcher) drainOnce(ctx context.Context) {
	for {
		req, ack, err := d.requests.Receive(ctx)
		if err != nil {
			if err != ErrEmpty {
				d.logger.Warn().Err(err).Msg("failed to receive crawl request")
			}
			return
		}

		if err := d.crawler.CrawlOrigin(ctx, req.Origin); err != nil {
			d.logger.Warn().Err(err).Str("origin", req.Origin).Msg("dispatched crawl failed")
		}
		if err := ack(); err != nil {
			d.logger.Warn().Err(err).Str("origin", req.Origin).Msg("failed to ack crawl request")
		}
	}
}
