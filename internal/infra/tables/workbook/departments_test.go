package workbook

import (
	"context"
	"errors"
	"testing"

	"workpal/internal/blob"
	"workpal/internal/infra/codec/xlsx"
	"workpal/pkg/domain"
)

func TestDepartmentsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	blobs, err := blob.NewFilesystem(root)
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	s := New(blobs, xlsx.New())
	if err := s.SaveDepartment(ctx, domain.Department{Key: "ops", Name: "Ops"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveDepartment(ctx, domain.Department{Key: "ops", Name: "OPS"}); err != nil {
		t.Fatalf("save again: %v", err)
	}

	reopenedBlobs, err := blob.NewFilesystem(root)
	if err != nil {
		t.Fatalf("fs: %v", err)
	}
	got, err := New(reopenedBlobs, xlsx.New()).LoadDepartments(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Key != "ops" || got[0].Name != "Ops" {
		t.Fatalf("unexpected departments %+v", got)
	}
}

func TestWorkbookOnlyDepartmentsAreLoaded(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	s := newSeeded(t, blobs)
	if err := s.SaveDepartment(ctx, domain.Department{Key: "sales", Name: "Sales"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadDepartments(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 || got[0] != (domain.Department{Key: "hr", Name: "hr"}) || got[1] != (domain.Department{Key: "sales", Name: "Sales"}) {
		t.Fatalf("unexpected departments %+v", got)
	}
}

type failingHead struct{ blob.Store }

func (failingHead) Head(context.Context, string) (blob.Info, error) {
	return blob.Info{}, errors.New("unreachable")
}

func TestSaveDepartmentStorageFailure(t *testing.T) {
	s := New(failingHead{Store: blob.NewMemory()}, xlsx.New())
	if err := s.SaveDepartment(context.Background(), domain.Department{Key: "ops", Name: "Ops"}); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}
