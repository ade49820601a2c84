package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"taskflow/internal/config"
	"taskflow/internal/db"
	"taskflow/internal/domain"
	"taskflow/internal/events"
	"taskflow/internal/migrate"
	"taskflow/internal/notify"
	"taskflow/internal/repo"
	"taskflow/internal/store"
	"taskflow/internal/summary"
	"taskflow/internal/workflow"
)

// Engine wires the task store, event log and summarize workflow for one
// workspace. Every surface (CLI, HTTP) goes through it.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Store    *store.Store
	Workflow *workflow.Orchestrator
	Config   *config.Config
	Logger   *slog.Logger
	Now      func() time.Time
}

// Options override collaborators, mainly for tests.
type Options struct {
	Summarizer summary.Summarizer
	Sink       notify.Sink
	Now        func() time.Time
	NewID      func() string
	Logger     *slog.Logger
}

// Open opens the workspace database, applies migrations and loads the tasks.
func Open(ctx context.Context, workspace string, cfg *config.Config, opts Options) (*Engine, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	e, err := New(ctx, conn, cfg, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return e, nil
}

// New builds an engine on an already migrated database.
func New(ctx context.Context, conn *sql.DB, cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	r := repo.Repo{DB: conn, Now: now}
	storeOpts := []store.Option{store.WithClock(now), store.WithLogger(logger)}
	if opts.NewID != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(opts.NewID))
	}
	st, err := store.New(ctx, repo.Snapshot{Repo: r, Key: store.SnapshotKey}, storeOpts...)
	if err != nil {
		return nil, err
	}
	summarizer := opts.Summarizer
	if summarizer == nil {
		summarizer, err = summary.FromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("summary provider: %w", err)
		}
	}
	sink := opts.Sink
	if sink == nil {
		sink = notify.NewSlack(cfg.Slack.WebhookURL, cfg.SlackTimeout())
	}
	return &Engine{
		DB:       conn,
		Repo:     r,
		Events:   events.Writer{DB: conn, Now: now},
		Store:    st,
		Workflow: workflow.New(summarizer, sink, cfg.WorkflowTimeout(), logger),
		Config:   cfg,
		Logger:   logger,
		Now:      now,
	}, nil
}

func (e *Engine) Close() error {
	return e.DB.Close()
}

func (e *Engine) AddTask(ctx context.Context, text string) (domain.Task, error) {
	t, err := e.Store.Add(ctx, text)
	if err != nil {
		return domain.Task{}, err
	}
	e.record(ctx, events.TaskAdded, t.ID, events.EventPayload{"text": t.Text})
	return t, nil
}

// ToggleTask flips completion; the bool reports whether id existed.
func (e *Engine) ToggleTask(ctx context.Context, id string) (domain.Task, bool, error) {
	t, found, err := e.Store.Toggle(ctx, id)
	if err != nil {
		return domain.Task{}, false, err
	}
	if found {
		e.record(ctx, events.TaskToggled, t.ID, events.EventPayload{"completed": t.Completed})
	}
	return t, found, nil
}

func (e *Engine) DeleteTask(ctx context.Context, id string) (bool, error) {
	found, err := e.Store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if found {
		e.record(ctx, events.TaskDeleted, id, nil)
	}
	return found, nil
}

type Status struct {
	Total        int  `json:"total"`
	Pending      int  `json:"pending"`
	AllCompleted bool `json:"all_completed"`
}

func (e *Engine) Status() Status {
	total, pending := e.Store.Counts()
	return Status{Total: total, Pending: pending, AllCompleted: total > 0 && pending == 0}
}

// Summarize runs summarize-and-notify over the current tasks.
func (e *Engine) Summarize(ctx context.Context) domain.WorkflowResult {
	tasks := e.Store.List()
	res := e.Workflow.Run(ctx, tasks)
	if pending := len(domain.Pending(tasks)); pending > 0 {
		evt := events.SummarySent
		if !res.Success {
			evt = events.SummaryFailed
		}
		e.record(ctx, evt, "", events.EventPayload{"pending": pending, "message": res.Message})
	}
	return res
}

// record appends to the event log. The task snapshot is already durable, so
// a failed append is logged rather than returned.
func (e *Engine) record(ctx context.Context, evtType, entityID string, payload events.EventPayload) {
	if err := e.Events.Append(ctx, evtType, entityID, payload); err != nil {
		e.Logger.Warn("append event", "type", evtType, "error", err)
	}
}
