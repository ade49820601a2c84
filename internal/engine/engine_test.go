package engine_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"taskflow/internal/config"
	"taskflow/internal/domain"
	"taskflow/internal/engine"
	"taskflow/internal/events"
	"taskflow/internal/migrate"
	"taskflow/internal/notify"
	"taskflow/internal/workflow"
)

type fixedSummarizer struct{ calls int }

func (f *fixedSummarizer) Summarize(context.Context, []domain.Task) (domain.Summary, error) {
	f.calls++
	return domain.Summary{Summary: "Buy milk.", Progress: "Generated summary of todos."}, nil
}

type memSink struct {
	url  string
	sent []string
}

func (s *memSink) Configured() bool { return s.url != "" }

func (s *memSink) Send(_ context.Context, text string) error {
	if s.url == "down" {
		return &notify.StatusError{Code: 503}
	}
	s.sent = append(s.sent, text)
	return nil
}

type testEnv struct {
	Engine    *engine.Engine
	Ctx       context.Context
	Dir       string
	Sink      *memSink
	Summaries *fixedSummarizer
}

func options(sink *memSink, sum *fixedSummarizer) engine.Options {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick, ids := 0, 0
	return engine.Options{
		Summarizer: sum,
		Sink:       sink,
		Now: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Minute)
		},
		NewID: func() string {
			ids++
			return fmt.Sprintf("task-%d", ids)
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	sink := &memSink{url: "https://hooks.example.test/T/B/X"}
	sum := &fixedSummarizer{}
	eng, err := engine.Open(ctx, dir, config.Default(), options(sink, sum))
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return testEnv{Engine: eng, Ctx: ctx, Dir: dir, Sink: sink, Summaries: sum}
}

func TestTasksSurviveReopen(t *testing.T) {
	env := newTestEnv(t)
	a, err := env.Engine.AddTask(env.Ctx, "Buy milk")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	b, err := env.Engine.AddTask(env.Ctx, "Finish report")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, found, err := env.Engine.ToggleTask(env.Ctx, a.ID); err != nil || !found {
		t.Fatalf("toggle: found=%v err=%v", found, err)
	}
	c, _ := env.Engine.AddTask(env.Ctx, "Call mom")
	if found, err := env.Engine.DeleteTask(env.Ctx, c.ID); err != nil || !found {
		t.Fatalf("delete: found=%v err=%v", found, err)
	}
	want := env.Engine.Store.List()
	if len(want) != 2 || want[0].ID != b.ID || !want[1].Completed {
		t.Fatalf("unexpected tasks %+v", want)
	}
	env.Engine.Close()

	reopened, err := engine.Open(env.Ctx, env.Dir, config.Default(), options(&memSink{}, &fixedSummarizer{}))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if diff := cmp.Diff(want, reopened.Store.List()); diff != "" {
		t.Fatalf("tasks lost across reopen (-want +got):\n%s", diff)
	}
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	a, _ := env.Engine.AddTask(env.Ctx, "Buy milk")
	_, _, _ = env.Engine.ToggleTask(env.Ctx, a.ID)
	_, _, _ = env.Engine.ToggleTask(env.Ctx, "missing")
	_, _ = env.Engine.DeleteTask(env.Ctx, a.ID)
	_, _ = env.Engine.DeleteTask(env.Ctx, "missing")

	evts, err := env.Engine.Repo.TailEvents(env.Ctx, 10)
	if err != nil {
		t.Fatalf("tail events: %v", err)
	}
	var types []string
	for _, e := range evts {
		types = append(types, e.Type)
		if e.EntityID != a.ID {
			t.Fatalf("unexpected entity %q", e.EntityID)
		}
	}
	if diff := cmp.Diff([]string{events.TaskAdded, events.TaskToggled, events.TaskDeleted}, types); diff != "" {
		t.Fatalf("event types (-want +got):\n%s", diff)
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	if got := env.Engine.Status(); got != (engine.Status{}) {
		t.Fatalf("empty status %+v", got)
	}
	a, _ := env.Engine.AddTask(env.Ctx, "a")
	_, _ = env.Engine.AddTask(env.Ctx, "b")
	if got := env.Engine.Status(); got != (engine.Status{Total: 2, Pending: 2}) {
		t.Fatalf("status %+v", got)
	}
	_, _, _ = env.Engine.ToggleTask(env.Ctx, a.ID)
	list := env.Engine.Store.List()
	_, _, _ = env.Engine.ToggleTask(env.Ctx, list[0].ID)
	if got := env.Engine.Status(); got != (engine.Status{Total: 2, Pending: 0, AllCompleted: true}) {
		t.Fatalf("status %+v", got)
	}
}

func TestSummarize(t *testing.T) {
	env := newTestEnv(t)

	res := env.Engine.Summarize(env.Ctx)
	if !res.Success || res.Message != workflow.MsgNoPending || env.Summaries.calls != 0 {
		t.Fatalf("empty store: %+v calls=%d", res, env.Summaries.calls)
	}

	_, _ = env.Engine.AddTask(env.Ctx, "Buy milk")
	res = env.Engine.Summarize(env.Ctx)
	want := domain.WorkflowResult{Success: true, Message: workflow.MsgSent, Summary: "Buy milk."}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Fatalf("result (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{workflow.MessagePrefix + "Buy milk."}, env.Sink.sent); diff != "" {
		t.Fatalf("sent (-want +got):\n%s", diff)
	}

	env.Sink.url = "down"
	res = env.Engine.Summarize(env.Ctx)
	if res.Success || res.Message != "Failed to send summary to Slack. Status: 503" {
		t.Fatalf("unexpected failure result %+v", res)
	}

	evts, err := env.Engine.Repo.TailEvents(env.Ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(evts) != 2 || evts[0].Type != events.SummarySent || evts[1].Type != events.SummaryFailed {
		t.Fatalf("unexpected summary events %+v", evts)
	}
}

func TestAddEmptyTextRejected(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.AddTask(env.Ctx, "  "); err == nil {
		t.Fatalf("expected error")
	}
	evts, _ := env.Engine.Repo.TailEvents(env.Ctx, 10)
	if len(evts) != 0 {
		t.Fatalf("rejected add must not be logged: %+v", evts)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	if err := migrate.Migrate(env.Ctx, env.Engine.DB); err != nil {
		t.Fatalf("re-run migrations: %v", err)
	}
	v, err := migrate.Version(env.Ctx, env.Engine.DB)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Fatalf("expected schema version 2, got %d", v)
	}
}
