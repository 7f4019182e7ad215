// Package sqlite is a SQLite-backed history store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hl-fury/xai-narrative-service/internal/domain"
	"github.com/hl-fury/xai-narrative-service/internal/history"
)

// Store is a SQLite implementation of history.Store
type Store struct {
	db *sql.DB
}

var _ history.Store = (*Store)(nil)

// New creates a new SQLite store
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS explanations (
			id TEXT PRIMARY KEY,
			dataset TEXT NOT NULL,
			model TEXT NOT NULL,
			mode TEXT NOT NULL,
			request TEXT,
			result TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_explanations_dataset ON explanations(dataset)`,
		`CREATE INDEX IF NOT EXISTS idx_explanations_created ON explanations(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Save(ctx context.Context, rec *history.Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	request, err := json.Marshal(rec.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO explanations (id, dataset, model, mode, request, result, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Dataset, rec.Model, string(rec.Mode), string(request), string(result), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*history.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, dataset, model, mode, request, result, created_at
		 FROM explanations WHERE id = ?`, id)

	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, history.ErrNotFound
	}
	return rec, err
}

func (s *Store) List(ctx context.Context, opts history.ListOptions) ([]*history.Record, error) {
	query := `SELECT id, dataset, model, mode, request, result, created_at
		FROM explanations`
	var args []any
	if opts.Dataset != "" {
		query += ` WHERE dataset = ?`
		args = append(args, opts.Dataset)
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []*history.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM explanations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return history.ErrNotFound
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM explanations`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func scanRecord(scan func(...any) error) (*history.Record, error) {
	var rec history.Record
	var mode, request, result string
	if err := scan(&rec.ID, &rec.Dataset, &rec.Model, &mode, &request, &result, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Mode = domain.GenerationMode(mode)

	if request != "" && request != "null" {
		if err := json.Unmarshal([]byte(request), &rec.Request); err != nil {
			return nil, fmt.Errorf("failed to unmarshal request: %w", err)
		}
	}
	if result != "" && result != "null" {
		if err := json.Unmarshal([]byte(result), &rec.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return &rec, nil
}
