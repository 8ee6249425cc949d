package scheduler_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/driftweb/crawlindex/internal/scheduler"
)

type fakeUsers struct {
	origin string
}

func (f fakeUsers) ActiveUserOrigin(_ context.Context) (string, error) { return f.origin, nil }

type fakeGraph struct {
	ids       map[string]int64
	follows   map[int64][]string
	published map[int64][]string
}

func (g *fakeGraph) ResolveSourceID(_ context.Context, origin string) (int64, bool, error) {
	id, ok := g.ids[origin]
	return id, ok, nil
}

func (g *fakeGraph) Follows(_ context.Context, sourceID int64) ([]string, error) {
	return g.follows[sourceID], nil
}

func (g *fakeGraph) Published(_ context.Context, sourceID int64) ([]string, error) {
	return g.published[sourceID], nil
}

type recordingCrawler struct {
	mu    sync.Mutex
	calls []string
}

func (c *recordingCrawler) CrawlOrigin(_ context.Context, origin string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, origin)
	return nil
}

func (c *recordingCrawler) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

func TestRunOnce_DispatchesSelfFollowsPublishedAndFoaf(t *testing.T) {
	graph := &fakeGraph{
		ids: map[string]int64{
			"hyper://self":   1,
			"hyper://friend": 2,
		},
		follows: map[int64][]string{
			1: {"hyper://friend"},
			2: {"hyper://foaf"},
		},
		published: map[int64][]string{
			1: {"hyper://pub"},
		},
	}
	crawler := &recordingCrawler{}
	s := scheduler.New(fakeUsers{origin: "hyper://self"}, graph, crawler, arbor.NewLogger(), "", 0)

	require.NoError(t, s.RunOnce(context.Background()))

	got := crawler.snapshot()
	assert.ElementsMatch(t, []string{"hyper://self", "hyper://friend", "hyper://pub", "hyper://foaf"}, got)
}

func TestRunOnce_WindowWrapsAndCursorAdvances(t *testing.T) {
	graph := &fakeGraph{ids: map[string]int64{"hyper://self": 1}, follows: map[int64][]string{}, published: map[int64][]string{}}

	// 15 direct follows so the candidate list exceeds the N=10 window.
	follows := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		follows = append(follows, "hyper://f"+string(rune('a'+i)))
	}
	graph.follows[1] = follows

	crawler := &recordingCrawler{}
	s := scheduler.New(fakeUsers{origin: "hyper://self"}, graph, crawler, arbor.NewLogger(), "", 0)

	require.NoError(t, s.RunOnce(context.Background()))
	first := crawler.snapshot()
	require.Len(t, first, 10)

	require.NoError(t, s.RunOnce(context.Background()))
	all := crawler.snapshot()
	require.Len(t, all, 20) // two ticks of 10 dispatches each, cumulative

	second := all[10:]
	// the second tick's window picks up where the first tick's cursor
	// left off (candidate 10) rather than restarting from candidate 0.
	// Dispatch runs in parallel, so each window is compared as a set.
	candidates := append([]string{"hyper://self"}, follows...)
	assert.NotEqual(t, first, second)
	assert.ElementsMatch(t, candidates[:10], first)
	assert.ElementsMatch(t, append(append([]string{}, candidates[10:]...), candidates[:4]...), second) // candidates 16 long, cursor 10+10 wraps back through index 0..3
}

func TestRunOnce_NoActiveUserIsANoOp(t *testing.T) {
	graph := &fakeGraph{}
	crawler := &recordingCrawler{}
	s := scheduler.New(fakeUsers{origin: ""}, graph, crawler, arbor.NewLogger(), "", 0)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Empty(t, crawler.snapshot())
}

func TestRunOnce_SelfNeverCrawledYieldsSelfOnlyCandidate(t *testing.T) {
	graph := &fakeGraph{ids: map[string]int64{}}
	crawler := &recordingCrawler{}
	s := scheduler.New(fakeUsers{origin: "hyper://self"}, graph, crawler, arbor.NewLogger(), "", 0)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, []string{"hyper://self"}, crawler.snapshot())
}
