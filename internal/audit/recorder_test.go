package audit_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/FoxxDev-Collab/aft-web-sub001/internal/audit"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/db"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/domain"
	"github.com/FoxxDev-Collab/aft-web-sub001/internal/migrate"
)

func newRecorder(t *testing.T) (audit.Recorder, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return audit.Recorder{DB: conn}, context.Background()
}

func seedEntries(t *testing.T, r audit.Recorder, ctx context.Context, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		entry := domain.AuditEntry{
			RequestID:  "r1",
			ActorID:    fmt.Sprintf("actor-%d", i%2),
			Action:     "submit",
			FromStatus: "draft",
			ToStatus:   "submitted",
			Outcome:    domain.OutcomeSuccess,
			TS:         fmt.Sprintf("2026-03-%02dT12:00:00Z", i),
		}
		if i%3 == 0 {
			entry.Outcome = domain.OutcomeDenied
			entry.Reason = "denied for test"
		}
		if err := r.Append(ctx, nil, entry); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

func TestListNewestFirstWithCursor(t *testing.T) {
	r, ctx := newRecorder(t)
	seedEntries(t, r, ctx, 6)

	page, err := r.List(ctx, audit.Filters{Limit: 4})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 4 {
		t.Fatalf("page size %d", len(page))
	}
	if page[0].ID <= page[1].ID {
		t.Fatalf("not newest-first: %d then %d", page[0].ID, page[1].ID)
	}

	rest, err := r.List(ctx, audit.Filters{Limit: 4, CursorID: page[len(page)-1].ID})
	if err != nil {
		t.Fatalf("list after cursor: %v", err)
	}
	if len(rest) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(rest))
	}
	if rest[0].ID >= page[len(page)-1].ID {
		t.Fatalf("cursor not applied: %d", rest[0].ID)
	}
}

func TestListFilters(t *testing.T) {
	r, ctx := newRecorder(t)
	seedEntries(t, r, ctx, 6)

	denied, err := r.List(ctx, audit.Filters{Outcome: domain.OutcomeDenied})
	if err != nil {
		t.Fatal(err)
	}
	if len(denied) != 2 {
		t.Fatalf("expected 2 denied, got %d", len(denied))
	}

	byActor, err := r.List(ctx, audit.Filters{ActorID: "actor-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byActor) != 3 {
		t.Fatalf("expected 3 by actor-1, got %d", len(byActor))
	}

	ranged, err := r.List(ctx, audit.Filters{
		Since: "2026-03-02T00:00:00Z",
		Until: "2026-03-04T23:59:59Z",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(ranged) != 3 {
		t.Fatalf("expected 3 in range, got %d", len(ranged))
	}
}

func TestCountForRequest(t *testing.T) {
	r, ctx := newRecorder(t)
	seedEntries(t, r, ctx, 4)
	if err := r.Append(ctx, nil, domain.AuditEntry{
		RequestID: "other", ActorID: "a", Action: "submit",
		FromStatus: "draft", Outcome: domain.OutcomeSuccess, TS: "2026-03-09T12:00:00Z",
	}); err != nil {
		t.Fatal(err)
	}
	count, err := r.CountForRequest(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 4 {
		t.Fatalf("expected 4, got %d", count)
	}
}
