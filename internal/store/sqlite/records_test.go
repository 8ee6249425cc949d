package sqlite_test

import (
	"context"
	"testing"
)

func TestUpsertRecord_InsertsThenUpdatesInPlace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cs, err := store.GetOrCreateCrawlSource(ctx, "hyper://origin", 0)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	id, err := store.UpsertRecord(ctx, "posts", cs.ID, "/data/posts/a.json", 1, map[string]any{
		"body": "hello", "created_at": int64(1), "updated_at": int64(0),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	id2, err := store.UpsertRecord(ctx, "posts", cs.ID, "/data/posts/a.json", 2, map[string]any{
		"body": "world", "created_at": int64(1), "updated_at": int64(2),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if id2 != id {
		t.Fatalf("expected upsert to reuse the same row id, got %d then %d", id, id2)
	}

	var body string
	if err := store.DB().QueryRowContext(ctx, `SELECT body FROM posts WHERE id = ?`, id).Scan(&body); err != nil {
		t.Fatalf("read back: %v", err)
	}
	if body != "world" {
		t.Fatalf("expected the second upsert to overwrite body, got %q", body)
	}
}

func TestDeleteRecord_ReportsWhetherARowExisted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cs, err := store.GetOrCreateCrawlSource(ctx, "hyper://origin", 0)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	if _, err := store.UpsertRecord(ctx, "posts", cs.ID, "/data/posts/a.json", 1, map[string]any{
		"body": "hi", "created_at": int64(0), "updated_at": int64(0),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	existed, err := store.DeleteRecord(ctx, "posts", cs.ID, "/data/posts/a.json")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !existed {
		t.Fatal("expected the row to have existed")
	}

	existed, err = store.DeleteRecord(ctx, "posts", cs.ID, "/data/posts/a.json")
	if err != nil {
		t.Fatalf("delete again: %v", err)
	}
	if existed {
		t.Fatal("expected the second delete to report no row existed")
	}
}

func TestRecordExists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cs, err := store.GetOrCreateCrawlSource(ctx, "hyper://origin", 0)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	ok, err := store.RecordExists(ctx, "posts", cs.ID, "/data/posts/a.json")
	if err != nil || ok {
		t.Fatalf("expected no row yet, got ok=%v err=%v", ok, err)
	}

	if _, err := store.UpsertRecord(ctx, "posts", cs.ID, "/data/posts/a.json", 1, map[string]any{
		"body": "hi", "created_at": int64(0), "updated_at": int64(0),
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	ok, err = store.RecordExists(ctx, "posts", cs.ID, "/data/posts/a.json")
	if err != nil || !ok {
		t.Fatalf("expected the row to exist, got ok=%v err=%v", ok, err)
	}
}

func TestResetDataset_ClearsEveryRowForSource(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cs, err := store.GetOrCreateCrawlSource(ctx, "hyper://origin", 0)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	for _, p := range []string{"/data/posts/a.json", "/data/posts/b.json"} {
		if _, err := store.UpsertRecord(ctx, "posts", cs.ID, p, 1, map[string]any{
			"body": "x", "created_at": int64(0), "updated_at": int64(0),
		}); err != nil {
			t.Fatalf("insert %s: %v", p, err)
		}
	}

	if err := store.ResetDataset(ctx, "posts", cs.ID); err != nil {
		t.Fatalf("reset: %v", err)
	}

	var count int
	if err := store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM posts WHERE source_id = ?`, cs.ID).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 rows after reset, got %d", count)
	}
}

func TestSyncTags_ReplacesJoinRows(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cs, err := store.GetOrCreateCrawlSource(ctx, "hyper://origin", 0)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	id, err := store.UpsertRecord(ctx, "posts", cs.ID, "/data/posts/a.json", 1, map[string]any{
		"body": "hi", "created_at": int64(0), "updated_at": int64(0),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := store.SyncTags(ctx, "post_tags", "post_id", id, []string{"go", "sqlite"}); err != nil {
		t.Fatalf("sync tags: %v", err)
	}
	if err := store.SyncTags(ctx, "post_tags", "post_id", id, []string{"sqlite"}); err != nil {
		t.Fatalf("sync tags again: %v", err)
	}

	var count int
	if err := store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM post_tags WHERE post_id = ?`, id).Scan(&count); err != nil {
		t.Fatalf("count join rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected the second sync to leave exactly one tag, got %d", count)
	}
}
