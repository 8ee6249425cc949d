package sqlite_test

import (
	"context"
	"testing"
)

func TestReactions_UpsertAndListByTopic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	alice, err := store.GetOrCreateCrawlSource(ctx, "hyper://alice", 0)
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := store.GetOrCreateCrawlSource(ctx, "hyper://bob", 0)
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	if err := store.UpsertReaction(ctx, alice.ID, "/data/reactions/hello.json", "hello", "👍", 1); err != nil {
		t.Fatalf("upsert alice reaction: %v", err)
	}
	if err := store.UpsertReaction(ctx, bob.ID, "/data/reactions/hello.json", "hello", "🎉", 1); err != nil {
		t.Fatalf("upsert bob reaction: %v", err)
	}

	rows, err := store.ListReactionsByTopic(ctx, "hello")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 reaction rows, got %d", len(rows))
	}

	// Overwriting alice's row in place must not create a duplicate.
	if err := store.UpsertReaction(ctx, alice.ID, "/data/reactions/hello.json", "hello", "👍👍", 2); err != nil {
		t.Fatalf("re-upsert alice reaction: %v", err)
	}
	rows, err = store.ListReactionsByTopic(ctx, "hello")
	if err != nil {
		t.Fatalf("list after re-upsert: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected re-upsert to update in place, got %d rows", len(rows))
	}

	emojis, err := store.GetReactionEmojis(ctx, alice.ID, "/data/reactions/hello.json")
	if err != nil {
		t.Fatalf("get emojis: %v", err)
	}
	if emojis != "👍👍" {
		t.Fatalf("expected updated emojis, got %q", emojis)
	}
}

func TestReactions_GetEmojisForUnknownPathIsEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cs, err := store.GetOrCreateCrawlSource(ctx, "hyper://origin", 0)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	emojis, err := store.GetReactionEmojis(ctx, cs.ID, "/data/reactions/missing.json")
	if err != nil {
		t.Fatalf("get emojis: %v", err)
	}
	if emojis != "" {
		t.Fatalf("expected empty emojis for an unknown path, got %q", emojis)
	}
}
