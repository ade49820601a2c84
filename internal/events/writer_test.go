package events_test

import (
	"context"
	"testing"
	"time"

	"taskflow/internal/db"
	"taskflow/internal/events"
	"taskflow/internal/migrate"
	"taskflow/internal/repo"
)

func TestAppendWritesEvents(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	w := events.Writer{DB: conn, Now: now}

	if err := w.Append(ctx, events.TaskAdded, "task-1", events.EventPayload{"text": "Buy milk"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(ctx, events.SummarySent, "", nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := repo.Repo{DB: conn}.TailEvents(ctx, 10)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != events.TaskAdded || got[0].EntityID != "task-1" || got[0].Payload != `{"text":"Buy milk"}` {
		t.Fatalf("unexpected first event %+v", got[0])
	}
	if got[0].TS != "2024-01-01T12:00:00Z" {
		t.Fatalf("unexpected timestamp %q", got[0].TS)
	}
	if got[1].Type != events.SummarySent || got[1].EntityID != "" || got[1].Payload != "{}" {
		t.Fatalf("unexpected second event %+v", got[1])
	}
}
