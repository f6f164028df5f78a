package workbook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"workpal/internal/blob"
	"workpal/pkg/domain"
)

const departmentMarker = "department.json"

var _ domain.DepartmentStore = (*Store)(nil)

type departmentRecord struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// DepartmentKey returns the blob key of a department's registration marker,
// stored beside its workbook.
func DepartmentKey(department string) string {
	return domain.NormalizeDepartment(department) + "/" + departmentMarker
}

// SaveDepartment writes the department's marker. A department already marked
// keeps its first name.
func (s *Store) SaveDepartment(ctx context.Context, d domain.Department) error {
	key := DepartmentKey(d.Key)
	if _, err := s.blobs.Head(ctx, key); err == nil {
		return nil
	} else if !errors.Is(err, blob.ErrNotExist) {
		return domain.Wrap(domain.ErrKindStorage, "save department "+d.Key, err)
	}
	rec := departmentRecord{Key: domain.NormalizeDepartment(d.Key), Name: d.Name, RegisteredAt: time.Now().UTC()}
	data, err := json.Marshal(rec)
	if err != nil {
		return domain.Wrap(domain.ErrKindStorage, "save department "+d.Key, err)
	}
	opts := blob.PutOptions{ContentType: "application/json", Metadata: map[string]string{"department": rec.Key}}
	if _, err := s.blobs.Put(ctx, key, bytes.NewReader(data), opts); err != nil {
		return domain.Wrap(domain.ErrKindStorage, "save department "+d.Key, err)
	}
	return nil
}

// LoadDepartments returns every marked department, plus departments that only
// have a workbook, named by their key.
func (s *Store) LoadDepartments(ctx context.Context) ([]domain.Department, error) {
	infos, err := s.blobs.List(ctx, "")
	if err != nil {
		return nil, domain.Wrap(domain.ErrKindStorage, "list departments", err)
	}
	byKey := make(map[string]domain.Department)
	var order []string
	add := func(d domain.Department) {
		if _, ok := byKey[d.Key]; !ok {
			order = append(order, d.Key)
		}
		byKey[d.Key] = d
	}
	for _, info := range infos {
		dept, file, ok := strings.Cut(info.Key, "/")
		if !ok || dept == "" || strings.Contains(file, "/") {
			continue
		}
		switch {
		case file == departmentMarker:
			rec, err := s.readMarker(ctx, info.Key)
			if err != nil {
				return nil, err
			}
			add(domain.Department{Key: dept, Name: rec.Name})
		case info.Key == Key(dept):
			if _, ok := byKey[dept]; !ok {
				add(domain.Department{Key: dept, Name: dept})
			}
		}
	}
	out := make([]domain.Department, 0, len(order))
	for _, k := range order {
		out = append(out, byKey[k])
	}
	return out, nil
}

func (s *Store) readMarker(ctx context.Context, key string) (departmentRecord, error) {
	_, rc, err := s.blobs.Get(ctx, key)
	if err != nil {
		return departmentRecord{}, domain.Wrap(domain.ErrKindStorage, "load "+key, err)
	}
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	if err != nil {
		return departmentRecord{}, domain.Wrap(domain.ErrKindStorage, "load "+key, err)
	}
	var rec departmentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return departmentRecord{}, domain.Wrap(domain.ErrKindStorage, "decode "+key, err)
	}
	return rec, nil
}
