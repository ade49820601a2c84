package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskflow/internal/domain"
)

type Repo struct {
	DB  *sql.DB
	Now func() time.Time
}

var ErrNotFound = errors.New("not found")

func (r Repo) now() string {
	if r.Now != nil {
		return r.Now().UTC().Format(time.RFC3339Nano)
	}
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// GetSnapshot returns the raw value stored under key, or ErrNotFound.
func (r Repo) GetSnapshot(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM snapshots WHERE key=?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

// PutSnapshot overwrites the value stored under key.
func (r Repo) PutSnapshot(ctx context.Context, key string, value []byte) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO snapshots(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, string(value), r.now())
	return err
}

// TailEvents returns the newest events, oldest first.
func (r Repo) TailEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(entity_id,''),payload_json FROM (
SELECT * FROM events ORDER BY id DESC LIMIT ?) ORDER BY id ASC`, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsAfter returns events with id greater than cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(entity_id,''),payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, cursor, limit)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	res := []domain.Event{}
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// Snapshot binds one snapshot key for callers that persist a single document.
type Snapshot struct {
	Repo Repo
	Key  string
}

// Load returns nil, nil when nothing has been stored yet.
func (s Snapshot) Load(ctx context.Context) ([]byte, error) {
	data, err := s.Repo.GetSnapshot(ctx, s.Key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (s Snapshot) Save(ctx context.Context, data []byte) error {
	return s.Repo.PutSnapshot(ctx, s.Key, data)
}
