// Package memory provides an in-memory rule repository used for tests and
// ephemeral environments. The durable repositories hydrate one on startup and
// serve reads from it.
package memory

import (
	"context"
	"sync"
	"time"

	"workpal/pkg/domain"
)

var _ domain.RuleRepository = (*Store)(nil)

// Snapshot is the serializable state of the repository.
type Snapshot struct {
	Documents map[domain.Scope]domain.RuleDocument `json:"documents"`
}

// Store keeps at most one rule document per scope.
type Store struct {
	mu   sync.RWMutex
	docs map[domain.Scope]domain.RuleDocument
	now  func() time.Time
}

// NewStore returns an empty repository.
func NewStore() *Store {
	return &Store{docs: make(map[domain.Scope]domain.RuleDocument), now: func() time.Time { return time.Now().UTC() }}
}

func normalizeScope(scope domain.Scope) domain.Scope {
	return domain.Scope(domain.NormalizeDepartment(string(scope)))
}

// Get returns the scope's document.
func (s *Store) Get(_ context.Context, scope domain.Scope) (domain.RuleDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[normalizeScope(scope)]
	if !ok {
		return domain.RuleDocument{}, domain.Errorf(domain.ErrKindNotFound, "rules", "no rules uploaded for %s", scope)
	}
	return doc, nil
}

// Put overwrites the scope's document. A zero UploadedAt is stamped with now.
func (s *Store) Put(_ context.Context, doc domain.RuleDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[normalizeScope(doc.Scope)] = s.stamp(doc)
	return nil
}

// Prepare normalizes the document the way Put would store it, so durable stores
// can persist exactly what they later import.
func (s *Store) Prepare(doc domain.RuleDocument) domain.RuleDocument {
	return s.stamp(doc)
}

func (s *Store) stamp(doc domain.RuleDocument) domain.RuleDocument {
	doc.Scope = normalizeScope(doc.Scope)
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = s.now()
	}
	return doc
}

// ImportState replaces the repository content with snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[domain.Scope]domain.RuleDocument, len(snapshot.Documents))
	for k, v := range snapshot.Documents {
		s.docs[normalizeScope(k)] = v
	}
}
