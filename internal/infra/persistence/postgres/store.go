// Package postgres persists rule documents in Postgres through the pgx
// database/sql driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"workpal/internal/infra/persistence/memory"
	"workpal/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.RuleRepository = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/workpal?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const (
	ddlRules    = `CREATE TABLE IF NOT EXISTS rules (scope TEXT PRIMARY KEY, rule_text TEXT NOT NULL, uploaded_at TIMESTAMPTZ NOT NULL)`
	selectRules = `SELECT scope, rule_text, uploaded_at FROM rules`
	upsertRule  = `INSERT INTO rules(scope, rule_text, uploaded_at) VALUES($1,$2,$3) ON CONFLICT(scope) DO UPDATE SET rule_text=EXCLUDED.rule_text, uploaded_at=EXCLUDED.uploaded_at`
)

// Store writes documents to Postgres and serves reads from the in-memory copy
// hydrated at open.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed repository using dsn (falls back to defaultDSN).
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, ddlRules); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure rules table: %w", err)
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore()
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, selectRules)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select rules: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{Documents: map[domain.Scope]domain.RuleDocument{}}
	for rows.Next() {
		var (
			scope, text string
			uploaded    time.Time
		)
		if err := rows.Scan(&scope, &text, &uploaded); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan rules: %w", err)
		}
		snapshot.Documents[domain.Scope(scope)] = domain.RuleDocument{Scope: domain.Scope(scope), RuleText: text, UploadedAt: uploaded.UTC()}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate rules: %w", err)
	}
	return snapshot, nil
}

// Put upserts the document row, then updates the in-memory copy.
func (s *Store) Put(ctx context.Context, doc domain.RuleDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc = s.Prepare(doc)
	if _, err := s.db.ExecContext(ctx, upsertRule, string(doc.Scope), doc.RuleText, doc.UploadedAt); err != nil {
		return domain.Wrap(domain.ErrKindStorage, "put rules "+string(doc.Scope), err)
	}
	return s.Store.Put(ctx, doc)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
