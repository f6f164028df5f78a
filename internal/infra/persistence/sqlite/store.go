// Package sqlite persists rule documents in a SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"workpal/internal/infra/persistence/memory"
	"workpal/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.RuleRepository = (*Store)(nil)

// Store writes each document to the rules table and serves reads from an
// in-memory copy hydrated at open.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (or creates) the database at path.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "workpal.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS rules (
		scope TEXT PRIMARY KEY,
		rule_text TEXT NOT NULL,
		uploaded_at TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create rules table: %w", err)
	}
	s := &Store{Store: memory.NewStore(), db: db}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT scope, rule_text, uploaded_at FROM rules`)
	if err != nil {
		return fmt.Errorf("select rules: %w", err)
	}
	defer func() { _ = rows.Close() }()
	snapshot := memory.Snapshot{Documents: map[domain.Scope]domain.RuleDocument{}}
	for rows.Next() {
		var (
			scope, text, uploaded string
		)
		if err := rows.Scan(&scope, &text, &uploaded); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, uploaded)
		if err != nil {
			return fmt.Errorf("decode uploaded_at for %s: %w", scope, err)
		}
		snapshot.Documents[domain.Scope(scope)] = domain.RuleDocument{Scope: domain.Scope(scope), RuleText: text, UploadedAt: at}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rules: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

// Put upserts the document row, then updates the in-memory copy. A failed write
// leaves the previous document visible.
func (s *Store) Put(ctx context.Context, doc domain.RuleDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc = s.Prepare(doc)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO rules(scope, rule_text, uploaded_at) VALUES(?,?,?)
		ON CONFLICT(scope) DO UPDATE SET rule_text=excluded.rule_text, uploaded_at=excluded.uploaded_at`,
		string(doc.Scope), doc.RuleText, doc.UploadedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return domain.Wrap(domain.ErrKindStorage, "put rules "+string(doc.Scope), err)
	}
	return s.Store.Put(ctx, doc)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
