package search_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftweb/crawlindex/internal/search"
)

func TestList_OrdersByTimeColumnAscendingByDefault(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sid := seedSource(t, store, "hyper://alice")

	seedPost(t, store, sid, "/posts/1.json", "first post", 100, nil)
	seedPost(t, store, sid, "/posts/2.json", "second post", 200, nil)

	recs, err := search.List(ctx, store.DB(), search.Specs["posts"], store, search.ListFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(100), recs[0].CrawledAt)
	assert.Equal(t, int64(200), recs[1].CrawledAt)
	assert.Equal(t, "hyper://alice", recs[0].Author)
	assert.Equal(t, "first post", recs[0].Fields["body"])
}

func TestList_ReverseOrdersDescending(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sid := seedSource(t, store, "hyper://alice")
	seedPost(t, store, sid, "/posts/1.json", "first", 100, nil)
	seedPost(t, store, sid, "/posts/2.json", "second", 200, nil)

	recs, err := search.List(ctx, store.DB(), search.Specs["posts"], store, search.ListFilter{Reverse: true})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(200), recs[0].CrawledAt)
}

func TestList_FiltersByAuthor(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	alice := seedSource(t, store, "hyper://alice")
	bob := seedSource(t, store, "hyper://bob")
	seedPost(t, store, alice, "/posts/1.json", "alice post", 100, nil)
	seedPost(t, store, bob, "/posts/1.json", "bob post", 200, nil)

	recs, err := search.List(ctx, store.DB(), search.Specs["posts"], store, search.ListFilter{Authors: []string{"hyper://bob"}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "hyper://bob", recs[0].Author)
}

func TestList_FiltersByTagsWithANDSemantics(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sid := seedSource(t, store, "hyper://alice")
	seedPost(t, store, sid, "/posts/1.json", "tagged both", 100, []string{"go", "sqlite"})
	seedPost(t, store, sid, "/posts/2.json", "tagged one", 200, []string{"go"})

	recs, err := search.List(ctx, store.DB(), search.Specs["posts"], store, search.ListFilter{Tags: []string{"go", "sqlite"}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "/posts/1.json", recs[0].Pathname)
}

func TestList_LimitAndOffsetWindow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sid := seedSource(t, store, "hyper://alice")
	for i := int64(0); i < 5; i++ {
		seedPost(t, store, sid, "/posts/"+string(rune('a'+i))+".json", "body", 100+i, nil)
	}

	recs, err := search.List(ctx, store.DB(), search.Specs["posts"], nil, search.ListFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(101), recs[0].CrawledAt)
	assert.Equal(t, int64(102), recs[1].CrawledAt)
}

func TestList_HydratesAuthorTitleFromSiteDescription(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	sid := seedSource(t, store, "hyper://alice")
	seedPost(t, store, sid, "/posts/1.json", "hi", 100, nil)
	require.NoError(t, store.UpsertSiteDescription(ctx, sid, "/dat.json", "hyper://alice", "Alice's Site", "a description", "self", 50, 60))

	recs, err := search.List(ctx, store.DB(), search.Specs["posts"], store, search.ListFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Alice's Site", recs[0].AuthorTitle)
	assert.Equal(t, "a description", recs[0].AuthorDescription)
}

func TestList_RejectsNegativeLimitOrOffset(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, err := search.List(ctx, store.DB(), search.Specs["posts"], nil, search.ListFilter{Limit: -1})
	require.Error(t, err)

	_, err = search.List(ctx, store.DB(), search.Specs["posts"], nil, search.ListFilter{Offset: -1})
	require.Error(t, err)
}
