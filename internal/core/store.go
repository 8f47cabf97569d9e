package core

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/kokos-tools/kks/internal/targets"
)

// Store is a SQLite-backed persistence layer: a parse cache for targets
// documents and the history of gen/test batches.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error { return s.db.Close() }

// LookupDocument returns a cached parse of path when modification time and
// size still match and the entry was written under the current schema.
func (s *Store) LookupDocument(path string, modTime time.Time, size int64) (*targets.Document, bool) {
	var raw string
	err := s.db.QueryRow(
		`SELECT document FROM config_cache WHERE path = ? AND mod_time = ? AND size = ? AND schema = ?`,
		path, modTime.UnixNano(), size, targets.SchemaVersion(),
	).Scan(&raw)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Debug().Err(err).Str("file", path).Msg("config cache lookup failed")
		}
		return nil, false
	}
	var doc targets.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		log.Debug().Err(err).Str("file", path).Msg("dropping undecodable config cache entry")
		return nil, false
	}
	return &doc, true
}

// StoreDocument replaces the cache entry of path.
func (s *Store) StoreDocument(path string, modTime time.Time, size int64, doc *targets.Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO config_cache (path, mod_time, size, schema, document) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET mod_time = excluded.mod_time, size = excluded.size,
		 schema = excluded.schema, document = excluded.document`,
		path, modTime.UnixNano(), size, targets.SchemaVersion(), string(raw),
	)
	if err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	return nil
}

// BatchRun is the summary of one gen or test batch. Individual outcomes are
// not kept.
type BatchRun struct {
	ID        string
	Task      string
	Mode      string
	Target    string
	Ran       int
	Passed    int
	Failed    []string
	StartedAt time.Time
	Duration  time.Duration
}

// RecordBatch inserts a batch summary, assigning an ID when empty.
func (s *Store) RecordBatch(ctx context.Context, run *BatchRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_runs (id, task, mode, target, ran, passed, failed, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Task, run.Mode, run.Target, run.Ran, run.Passed,
		strings.Join(run.Failed, ","), run.StartedAt.UnixNano(), run.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("record batch: %w", err)
	}
	return nil
}

// ListBatches returns the latest batches of a task, newest first. An empty
// task lists every task.
func (s *Store) ListBatches(ctx context.Context, task string, limit int) ([]BatchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id, task, mode, target, ran, passed, failed, started_at, duration_ms FROM batch_runs`
	args := []any{}
	if task != "" {
		q += ` WHERE task = ?`
		args = append(args, task)
	}
	q += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()
	var out []BatchRun
	for rows.Next() {
		var (
			r        BatchRun
			failed   string
			started  int64
			duration int64
		)
		if err := rows.Scan(&r.ID, &r.Task, &r.Mode, &r.Target, &r.Ran, &r.Passed, &failed, &started, &duration); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		if failed != "" {
			r.Failed = strings.Split(failed, ",")
		}
		r.StartedAt = time.Unix(0, started)
		r.Duration = time.Duration(duration) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}
