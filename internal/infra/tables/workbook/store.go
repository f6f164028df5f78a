// Package workbook stores each department's dataset as one .xlsx workbook in a
// blob store, at "<department>/<department>_database.xlsx".
package workbook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"workpal/internal/blob"
	"workpal/pkg/domain"
)

const contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var _ domain.TableStore = (*Store)(nil)

// Store is a domain.TableStore over a blob store and a spreadsheet codec.
//
// All tables of a department share one workbook object, so a save is a
// read-modify-write of the whole file. The store serializes those per department;
// callers still hold the per-table guard for their own load-mutate-save cycle.
type Store struct {
	blobs blob.Store
	codec domain.SpreadsheetCodec

	mu    sync.Mutex
	files map[string]*sync.Mutex
}

// New returns a workbook store writing through blobs.
func New(blobs blob.Store, codec domain.SpreadsheetCodec) *Store {
	return &Store{blobs: blobs, codec: codec, files: make(map[string]*sync.Mutex)}
}

// Key returns the blob key holding a department's workbook.
func Key(department string) string {
	d := domain.NormalizeDepartment(department)
	return fmt.Sprintf("%s/%s_database.xlsx", d, d)
}

func (s *Store) fileLock(department string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NormalizeDepartment(department)
	m, ok := s.files[key]
	if !ok {
		m = &sync.Mutex{}
		s.files[key] = m
	}
	return m
}

func (s *Store) readDataset(ctx context.Context, department string) (domain.Dataset, error) {
	_, rc, err := s.blobs.Get(ctx, Key(department))
	if errors.Is(err, blob.ErrNotExist) {
		return domain.Dataset{}, domain.Errorf(domain.ErrKindNotFound, "load", "department %q has no dataset", department)
	}
	if err != nil {
		return domain.Dataset{}, domain.Wrap(domain.ErrKindStorage, "load "+department, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.Dataset{}, domain.Wrap(domain.ErrKindStorage, "load "+department, err)
	}
	ds, err := s.codec.Read(data)
	if err != nil {
		// a stored workbook that no longer decodes is a storage fault, not a bad upload
		return domain.Dataset{}, domain.Wrap(domain.ErrKindStorage, "load "+department, err)
	}
	return ds, nil
}

func (s *Store) writeDataset(ctx context.Context, department string, ds domain.Dataset) error {
	data, err := s.codec.Write(ds)
	if err != nil {
		return domain.Wrap(domain.ErrKindStorage, "save "+department, err)
	}
	opts := blob.PutOptions{ContentType: contentType, Metadata: map[string]string{"department": domain.NormalizeDepartment(department)}}
	if _, err := s.blobs.Put(ctx, Key(department), bytes.NewReader(data), opts); err != nil {
		return domain.Wrap(domain.ErrKindStorage, "save "+department, err)
	}
	return nil
}

func findTable(ds domain.Dataset, department, table string) (domain.Table, error) {
	t, ok := ds.Table(table)
	if !ok {
		return domain.Table{}, domain.Errorf(domain.ErrKindNotFound, "load", "table %q not found in %s", table, department)
	}
	return t, nil
}

// Load decodes the department workbook and returns one table.
func (s *Store) Load(ctx context.Context, department, table string) (domain.Table, error) {
	ds, err := s.readDataset(ctx, department)
	if err != nil {
		return domain.Table{}, err
	}
	return findTable(ds, department, table)
}

// Columns returns the table's header row.
func (s *Store) Columns(ctx context.Context, department, table string) ([]string, error) {
	t, err := s.Load(ctx, department, table)
	if err != nil {
		return nil, err
	}
	return t.Columns, nil
}

// Save replaces one sheet and writes the workbook back in a single blob put.
// The blob drivers replace objects atomically, so a failed save leaves the
// previous workbook readable.
func (s *Store) Save(ctx context.Context, department, table string, t domain.Table) error {
	lock := s.fileLock(department)
	lock.Lock()
	defer lock.Unlock()
	ds, err := s.readDataset(ctx, department)
	if err != nil {
		return err
	}
	current, err := findTable(ds, department, table)
	if err != nil {
		return err
	}
	t.Name = table
	if err := t.CheckAgainst(current.Columns); err != nil {
		return err
	}
	ds.Put(t)
	return s.writeDataset(ctx, department, ds)
}

// Tables lists sheet names in workbook order.
func (s *Store) Tables(ctx context.Context, department string) ([]string, error) {
	ds, err := s.readDataset(ctx, department)
	if err != nil {
		return nil, err
	}
	return ds.Names(), nil
}

// Replace writes a whole new workbook for the department.
func (s *Store) Replace(ctx context.Context, department string, ds domain.Dataset) error {
	for _, t := range ds.Tables {
		if err := t.CheckSchema(); err != nil {
			return err
		}
	}
	lock := s.fileLock(department)
	lock.Lock()
	defer lock.Unlock()
	return s.writeDataset(ctx, department, ds)
}
