// Package history persists one row per provider per refresh cycle so
// spending can be inspected over time. The table is append-only; Prune
// enforces retention.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spendmon/spendmon/internal/core"
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Point is one recorded provider observation.
type Point struct {
	RecordedAt  time.Time
	Cycle       uint64
	ProviderID  string
	Status      core.ConnectionStatus
	SpendingUSD *float64
	TokensUsed  *int64
	Message     string
}

func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history: creating DB dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening DB: %w", err)
	}

	store := NewStore(db)
	if err := store.Init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS spending_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			recorded_at TEXT NOT NULL,
			cycle INTEGER NOT NULL,
			provider_id TEXT NOT NULL,
			status TEXT NOT NULL,
			spending_usd REAL,
			tokens_used INTEGER,
			message TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_spending_history_provider_time ON spending_history(provider_id, recorded_at);`,
		`CREATE INDEX IF NOT EXISTS idx_spending_history_time ON spending_history(recorded_at);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history: init schema: %w", err)
		}
	}
	return nil
}

// RecordSnapshot appends one row per provider in the aggregate.
func (s *Store) RecordSnapshot(ctx context.Context, snap core.AggregateSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback()

	recordedAt := s.now().UTC().Format(time.RFC3339Nano)
	for id, p := range snap.Providers {
		var tokens interface{}
		if p.Usage != nil {
			tokens = int64(p.Usage.TokensUsed)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO spending_history (recorded_at, cycle, provider_id, status, spending_usd, tokens_used, message)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			recordedAt,
			snap.Cycle,
			id,
			string(p.Status),
			nullableFloat64(p.SpendingUSD),
			tokens,
			p.Message,
		); err != nil {
			return fmt.Errorf("history: insert row for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit tx: %w", err)
	}
	return nil
}

// ProviderHistory returns a provider's observations since a point in time,
// oldest first.
func (s *Store) ProviderHistory(ctx context.Context, providerID string, since time.Time) ([]Point, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT recorded_at, cycle, provider_id, status, spending_usd, tokens_used, message
		FROM spending_history
		WHERE provider_id = ? AND recorded_at >= ?
		ORDER BY recorded_at ASC
	`, providerID, since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("history: query provider history: %w", err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var (
			p          Point
			recordedAt string
			status     string
			spending   sql.NullFloat64
			tokens     sql.NullInt64
		)
		if err := rows.Scan(&recordedAt, &p.Cycle, &p.ProviderID, &status, &spending, &tokens, &p.Message); err != nil {
			return nil, fmt.Errorf("history: scan row: %w", err)
		}
		p.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		p.Status = core.ConnectionStatus(status)
		if spending.Valid {
			v := spending.Float64
			p.SpendingUSD = &v
		}
		if tokens.Valid {
			v := tokens.Int64
			p.TokensUsed = &v
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Prune deletes observations older than the retention window.
func (s *Store) Prune(ctx context.Context, keep time.Duration) error {
	cutoff := s.now().Add(-keep).UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM spending_history WHERE recorded_at < ?`, cutoff); err != nil {
		return fmt.Errorf("history: prune: %w", err)
	}
	return nil
}

func nullableFloat64(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
