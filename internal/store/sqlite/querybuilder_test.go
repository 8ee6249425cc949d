package sqlite_test

import (
	"reflect"
	"testing"

	"github.com/driftweb/crawlindex/internal/store/sqlite"
)

func TestQueryBuilder_Minimal(t *testing.T) {
	sql, args := sqlite.NewQueryBuilder("posts", "id", "body").Build()
	if sql != "SELECT id, body FROM posts" {
		t.Fatalf("unexpected SQL: %q", sql)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
}

func TestQueryBuilder_FullClauseSet(t *testing.T) {
	q := sqlite.NewQueryBuilder("posts", "p.id", "p.body").
		Join("JOIN crawl_sources cs ON cs.id = p.source_id").
		Where("cs.origin = ?", "hyper://origin").
		Where("p.created_at > ?", int64(100)).
		GroupBy("p.source_id").
		OrderBy("p.created_at", true).
		Limit(10).
		Offset(5)

	sql, args := q.Build()
	want := "SELECT p.id, p.body FROM posts JOIN crawl_sources cs ON cs.id = p.source_id" +
		" WHERE cs.origin = ? AND p.created_at > ? GROUP BY p.source_id" +
		" ORDER BY p.created_at DESC LIMIT ? OFFSET ?"
	if sql != want {
		t.Fatalf("unexpected SQL:\n got:  %q\n want: %q", sql, want)
	}

	wantArgs := []any{"hyper://origin", int64(100), 10, 5}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("unexpected args: got %v, want %v", args, wantArgs)
	}
}

func TestQueryBuilder_NonPositiveLimitAndOffsetAreOmitted(t *testing.T) {
	sql, args := sqlite.NewQueryBuilder("posts", "id").Limit(0).Offset(-1).Build()
	if sql != "SELECT id FROM posts" {
		t.Fatalf("expected limit/offset clauses to be omitted, got %q", sql)
	}
	if len(args) != 0 {
		t.Fatalf("expected no args, got %v", args)
	}
}

func TestQueryBuilder_OrderByAscending(t *testing.T) {
	sql, _ := sqlite.NewQueryBuilder("posts", "id").OrderBy("created_at", false).Build()
	if sql != "SELECT id FROM posts ORDER BY created_at ASC" {
		t.Fatalf("unexpected SQL: %q", sql)
	}
}

// TestQueryBuilder_OffsetWithoutLimitStaysValidSQL verifies a standalone
// Offset() call never emits a bare OFFSET clause, which SQLite rejects.
func TestQueryBuilder_OffsetWithoutLimitStaysValidSQL(t *testing.T) {
	sql, args := sqlite.NewQueryBuilder("posts", "id").Offset(5).Build()
	if sql != "SELECT id FROM posts LIMIT -1 OFFSET ?" {
		t.Fatalf("unexpected SQL: %q", sql)
	}
	if len(args) != 1 || args[0] != 5 {
		t.Fatalf("unexpected args: %v", args)
	}
}
