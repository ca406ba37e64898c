package numbering

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists counter state in a local file so numbering survives restarts on a
// terminal that runs without the shared database.
type SQLiteStore struct {
	db *sqlx.DB
}

func OpenSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open counter db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS document_counters (
			series TEXT PRIMARY KEY,
			last_number TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create document_counters: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LastDocumentNumber(ctx context.Context, series string) (string, error) {
	return lastNumber(ctx, s.db, series)
}

func (s *SQLiteStore) SaveLastDocumentNumber(ctx context.Context, series string, number string) error {
	return saveNumber(ctx, s.db, series, number)
}

func (s *SQLiteStore) UpdateLastDocumentNumber(ctx context.Context, series string, next func(last string) (string, error)) (string, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	last, err := lastNumber(ctx, tx, series)
	if err != nil {
		return "", err
	}
	number, err := next(last)
	if err != nil {
		return "", err
	}
	if err := saveNumber(ctx, tx, series, number); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return number, nil
}

func lastNumber(ctx context.Context, q sqlx.QueryerContext, series string) (string, error) {
	var number string
	err := sqlx.GetContext(ctx, q, &number, `SELECT last_number FROM document_counters WHERE series = ?`, series)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return number, err
}

func saveNumber(ctx context.Context, e sqlx.ExecerContext, series string, number string) error {
	_, err := e.ExecContext(ctx, `
		INSERT INTO document_counters (series, last_number, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (series) DO UPDATE SET last_number = excluded.last_number, updated_at = CURRENT_TIMESTAMP
	`, series, number)
	return err
}
