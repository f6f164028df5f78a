// Package memory provides an in-memory tabular store used for tests and
// ephemeral environments.
package memory

import (
	"context"
	"sync"

	"workpal/pkg/domain"
)

var _ domain.TableStore = (*Store)(nil)

// Store keeps one dataset per department in process memory. Every read returns a
// deep copy and every write stores one, so callers never share row maps with the
// store.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]domain.Dataset
	failSave error
}

// NewStore returns an empty in-memory table store.
func NewStore() *Store {
	return &Store{datasets: make(map[string]domain.Dataset)}
}

// FailSaves makes subsequent Save and Replace calls fail with err; nil restores
// normal writes.
func (s *Store) FailSaves(err error) {
	s.mu.Lock()
	s.failSave = err
	s.mu.Unlock()
}

func (s *Store) lookup(department, table string) (domain.Table, error) {
	ds, ok := s.datasets[domain.NormalizeDepartment(department)]
	if !ok {
		return domain.Table{}, domain.Errorf(domain.ErrKindNotFound, "load", "department %q has no dataset", department)
	}
	t, ok := ds.Table(table)
	if !ok {
		return domain.Table{}, domain.Errorf(domain.ErrKindNotFound, "load", "table %q not found in %s", table, department)
	}
	return t, nil
}

// Load returns a private copy of the table.
func (s *Store) Load(_ context.Context, department, table string) (domain.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.lookup(department, table)
	if err != nil {
		return domain.Table{}, err
	}
	return t.Clone(), nil
}

// Columns returns the established column order of the table.
func (s *Store) Columns(_ context.Context, department, table string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.lookup(department, table)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), t.Columns...), nil
}

// Save overwrites the table in full.
func (s *Store) Save(_ context.Context, department, table string, t domain.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.lookup(department, table)
	if err != nil {
		return err
	}
	t.Name = table
	if err := t.CheckAgainst(current.Columns); err != nil {
		return err
	}
	if s.failSave != nil {
		return domain.Wrap(domain.ErrKindStorage, "save "+table, s.failSave)
	}
	key := domain.NormalizeDepartment(department)
	ds := s.datasets[key]
	ds.Put(t.Clone())
	s.datasets[key] = ds
	return nil
}

// Tables lists the department's table names in dataset order.
func (s *Store) Tables(_ context.Context, department string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[domain.NormalizeDepartment(department)]
	if !ok {
		return nil, domain.Errorf(domain.ErrKindNotFound, "tables", "department %q has no dataset", department)
	}
	return ds.Names(), nil
}

// Replace swaps the department's whole dataset.
func (s *Store) Replace(_ context.Context, department string, ds domain.Dataset) error {
	for _, t := range ds.Tables {
		if err := t.CheckSchema(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return domain.Wrap(domain.ErrKindStorage, "replace "+department, s.failSave)
	}
	s.datasets[domain.NormalizeDepartment(department)] = ds.Clone()
	return nil
}
