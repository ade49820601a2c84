// Package store holds the ordered task collection and mirrors it to durable
// storage after every mutation.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskflow/internal/domain"
)

// SnapshotKey is the storage key holding the JSON array of all tasks.
const SnapshotKey = "todos"

var ErrEmptyText = errors.New("task text is required")

// Persister loads and overwrites the serialized task collection.
// Load returns nil data when nothing has been persisted yet.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

type Store struct {
	mu      sync.Mutex
	tasks   []domain.Task
	persist Persister
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New builds a store and loads the last persisted snapshot. A missing or
// unparseable snapshot yields an empty collection; only read failures are
// returned.
func New(ctx context.Context, p Persister, opts ...Option) (*Store, error) {
	s := &Store{
		persist: p,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	data, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	s.tasks = decode(data, s.logger)
	return s, nil
}

func decode(data []byte, logger *slog.Logger) []domain.Task {
	if len(data) == 0 {
		return []domain.Task{}
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		logger.Warn("failed to parse persisted tasks; starting empty", "error", err)
		return []domain.Task{}
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks
}

// Add creates a task, places it by creation time (newest first) and persists.
func (s *Store) Add(ctx context.Context, text string) (domain.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Task{}, ErrEmptyText
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := domain.Task{
		ID:        s.newID(),
		Text:      text,
		CreatedAt: s.now().UTC(),
	}
	next := make([]domain.Task, 0, len(s.tasks)+1)
	next = append(next, s.tasks...)
	next = append(next, t)
	sort.SliceStable(next, func(i, j int) bool { return next[i].CreatedAt.After(next[j].CreatedAt) })
	if err := s.commit(ctx, next); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// Toggle flips Completed on the task with id. An unknown id changes nothing
// but the snapshot is still written.
func (s *Store) Toggle(ctx context.Context, id string) (domain.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.clone()
	var (
		found   bool
		toggled domain.Task
	)
	for i := range next {
		if next[i].ID == id {
			next[i].Completed = !next[i].Completed
			toggled = next[i]
			found = true
			break
		}
	}
	if err := s.commit(ctx, next); err != nil {
		return domain.Task{}, false, err
	}
	return toggled, found, nil
}

// Delete removes the task with id; unknown ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]domain.Task, 0, len(s.tasks))
	found := false
	for _, t := range s.tasks {
		if t.ID == id {
			found = true
			continue
		}
		next = append(next, t)
	}
	if err := s.commit(ctx, next); err != nil {
		return false, err
	}
	return found, nil
}

// List returns the tasks in stored order.
func (s *Store) List() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clone()
}

// Pending returns incomplete tasks in stored order.
func (s *Store) Pending() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Pending(s.tasks)
}

func (s *Store) Get(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// Counts returns the total and pending task counts.
func (s *Store) Counts() (total, pending int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if !t.Completed {
			pending++
		}
	}
	return len(s.tasks), pending
}

func (s *Store) clone() []domain.Task {
	out := make([]domain.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// commit persists next and only then makes it the current collection.
func (s *Store) commit(ctx context.Context, next []domain.Task) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	if err := s.persist.Save(ctx, data); err != nil {
		return fmt.Errorf("persist tasks: %w", err)
	}
	s.tasks = next
	return nil
}
