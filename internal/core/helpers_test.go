package core

import (
	"context"
	"sync/atomic"
	"testing"

	rulememory "workpal/internal/infra/persistence/memory"
	tablememory "workpal/internal/infra/tables/memory"
	"workpal/pkg/domain"
)

// countingTables counts Save calls on top of the in-memory store.
type countingTables struct {
	*tablememory.Store
	saves atomic.Int64
}

func (c *countingTables) Save(ctx context.Context, department, table string, t domain.Table) error {
	c.saves.Add(1)
	return c.Store.Save(ctx, department, table, t)
}

func employeesTable() domain.Table {
	return domain.Table{
		Name:    "Employees",
		Columns: []string{"name", "dept", "salary", "active"},
		Rows: []domain.Row{
			{"name": domain.Text("Ada"), "dept": domain.Text("Eng"), "salary": domain.Number(100), "active": domain.Bool(true)},
			{"name": domain.Text("Grace"), "dept": domain.Text("Eng"), "salary": domain.Number(120), "active": domain.Bool(true)},
			{"name": domain.Text("Linus"), "dept": domain.Text("Ops"), "salary": domain.Number(90), "active": domain.Bool(false)},
		},
	}
}

type fixture struct {
	svc    *Service
	tables *countingTables
	rules  *rulememory.Store
}

func newFixture(t *testing.T, opts ...Option) fixture {
	t.Helper()
	tables := &countingTables{Store: tablememory.NewStore()}
	rules := rulememory.NewStore()
	ds := domain.Dataset{Tables: []domain.Table{
		employeesTable(),
		{Name: "Empty", Columns: []string{"a", "b"}, Rows: []domain.Row{}},
	}}
	if err := tables.Replace(context.Background(), "hr", ds); err != nil {
		t.Fatalf("seed: %v", err)
	}
	opts = append([]Option{WithDepartments("HR", "Sales")}, opts...)
	return fixture{svc: NewService(tables, rules, opts...), tables: tables, rules: rules}
}

func (f fixture) table(t *testing.T, name string) domain.Table {
	t.Helper()
	tbl, err := f.tables.Load(context.Background(), "hr", name)
	if err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
	return tbl
}

func sameTable(a, b domain.Table) bool {
	if len(a.Columns) != len(b.Columns) || len(a.Rows) != len(b.Rows) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	for i := range a.Rows {
		if len(a.Rows[i]) != len(b.Rows[i]) {
			return false
		}
		for col, v := range a.Rows[i] {
			if !b.Rows[i][col].Equal(v) {
				return false
			}
		}
	}
	return true
}

func text(s string) domain.Value { return domain.Text(s) }
