package memory

import (
	"context"
	"errors"
	"testing"

	"workpal/pkg/domain"
)

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	ds := domain.Dataset{Tables: []domain.Table{{
		Name:    "Employees",
		Columns: []string{"name", "dept"},
		Rows:    []domain.Row{{"name": domain.Text("Ada"), "dept": domain.Text("HR")}},
	}}}
	if err := s.Replace(context.Background(), "HR", ds); err != nil {
		t.Fatalf("replace: %v", err)
	}
	return s
}

func TestLoadReturnsPrivateCopy(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	tbl, err := s.Load(ctx, "hr", "Employees")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tbl.Rows[0]["name"] = domain.Text("Mallory")
	again, _ := s.Load(ctx, "HR", "Employees")
	if v, _ := again.Rows[0]["name"].AsText(); v != "Ada" {
		t.Fatalf("store mutated through loaded copy: %q", v)
	}
}

func TestLoadNotFound(t *testing.T) {
	s := seeded(t)
	if _, err := s.Load(context.Background(), "sales", "Employees"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for department, got %v", err)
	}
	if _, err := s.Load(context.Background(), "hr", "Payroll"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for table, got %v", err)
	}
}

func TestSaveRejectsSchemaDrift(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	tbl, _ := s.Load(ctx, "hr", "Employees")
	tbl.Rows = append(tbl.Rows, domain.Row{"name": domain.Text("Bob"), "dept": domain.Text("HR"), "age": domain.Number(3)})
	if err := s.Save(ctx, "hr", "Employees", tbl); !errors.Is(err, domain.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
	tbl, _ = s.Load(ctx, "hr", "Employees")
	tbl.Columns = []string{"dept", "name"}
	if err := s.Save(ctx, "hr", "Employees", tbl); !errors.Is(err, domain.ErrSchema) {
		t.Fatalf("expected schema error for reordered columns, got %v", err)
	}
	after, _ := s.Load(ctx, "hr", "Employees")
	if len(after.Rows) != 1 {
		t.Fatalf("rejected save must not change the table")
	}
}

func TestSaveFailureKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	tbl, _ := s.Load(ctx, "hr", "Employees")
	tbl.Rows = nil
	s.FailSaves(errors.New("disk full"))
	if err := s.Save(ctx, "hr", "Employees", tbl); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	s.FailSaves(nil)
	after, _ := s.Load(ctx, "hr", "Employees")
	if len(after.Rows) != 1 {
		t.Fatalf("failed save must leave rows intact")
	}
}

func TestTablesAndColumns(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	names, err := s.Tables(ctx, "HR")
	if err != nil || len(names) != 1 || names[0] != "Employees" {
		t.Fatalf("tables: %v %v", names, err)
	}
	cols, err := s.Columns(ctx, "hr", "Employees")
	if err != nil || len(cols) != 2 || cols[0] != "name" {
		t.Fatalf("columns: %v %v", cols, err)
	}
	if _, err := s.Tables(ctx, "it"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
