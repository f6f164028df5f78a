package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"workpal/pkg/domain"
)

func TestExecuteInsertThenReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	payload := map[string]domain.Value{"name": text("Alan"), "dept": text("Research"), "salary": domain.Number(130)}
	res, err := f.svc.Execute(ctx, domain.Intent{Action: "insert", Department: "HR", Table: "Employees", Payload: payload})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !res.Success || res.AffectedCount != 1 {
		t.Fatalf("unexpected insert result %+v", res)
	}
	read, err := f.svc.Execute(ctx, domain.Intent{Action: "READ", Department: "hr", Table: "Employees", Selector: map[string]domain.Value{"name": text("Alan")}})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(read.Data) != 1 {
		t.Fatalf("expected one row, got %+v", read.Data)
	}
	row := read.Data[0]
	for col, v := range payload {
		if !row[col].Equal(v) {
			t.Fatalf("column %s: got %v want %v", col, row[col], v)
		}
	}
	if !row["active"].IsEmpty() {
		t.Fatalf("omitted column must be empty, got %v", row["active"])
	}
	if got := f.table(t, "Employees").Rows; len(got) != 4 {
		t.Fatalf("insert must append at the end, got %d rows", len(got))
	}
}

func TestExecuteReadFiltersInTableOrder(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Execute(context.Background(), domain.Intent{Action: "READ", Department: "hr", Table: "Employees", Selector: map[string]domain.Value{"dept": text("Eng")}})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(res.Data) != 2 || !res.Data[0]["name"].Equal(text("Ada")) || !res.Data[1]["name"].Equal(text("Grace")) {
		t.Fatalf("unexpected rows %+v", res.Data)
	}
	if len(res.Columns) != 4 || res.Columns[0] != "name" {
		t.Fatalf("columns: %v", res.Columns)
	}
	all, _ := f.svc.Execute(context.Background(), domain.Intent{Action: "READ", Department: "hr", Table: "Employees"})
	if len(all.Data) != 3 {
		t.Fatalf("empty selector should return every row, got %d", len(all.Data))
	}
}

func TestExecuteReadKindExactComparison(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Execute(context.Background(), domain.Intent{Action: "READ", Department: "hr", Table: "Employees", Selector: map[string]domain.Value{"salary": text("100")}})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !res.Success || len(res.Data) != 0 {
		t.Fatalf("text \"100\" must not match number 100: %+v", res.Data)
	}
}

func TestExecuteReadEmptyTable(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Execute(context.Background(), domain.Intent{Action: "READ", Department: "hr", Table: "Empty"})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !res.Success || res.Data == nil || len(res.Data) != 0 {
		t.Fatalf("expected success with empty data, got %+v", res)
	}
}

func TestExecuteUpdateTouchesOnlyPayloadColumns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := f.table(t, "Employees")
	res, err := f.svc.Execute(ctx, domain.Intent{
		Action: "UPDATE", Department: "hr", Table: "Employees",
		Selector: map[string]domain.Value{"dept": text("Eng")},
		Payload:  map[string]domain.Value{"salary": domain.Number(200)},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.AffectedCount != 2 || f.tables.saves.Load() != 1 {
		t.Fatalf("expected 2 rows in a single save, got %d rows, %d saves", res.AffectedCount, f.tables.saves.Load())
	}
	after := f.table(t, "Employees")
	for i := range before.Rows {
		for _, col := range before.Columns {
			changed := !before.Rows[i][col].Equal(after.Rows[i][col])
			matched := before.Rows[i]["dept"].Equal(text("Eng"))
			if changed && !(matched && col == "salary") {
				t.Fatalf("row %d column %s changed unexpectedly", i, col)
			}
			if matched && col == "salary" && !after.Rows[i][col].Equal(domain.Number(200)) {
				t.Fatalf("row %d salary not updated", i)
			}
		}
	}
}

func TestExecuteZeroMatchMutationsLeaveTableUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := f.table(t, "Employees")
	sel := map[string]domain.Value{"name": text("Nobody")}
	upd, err := f.svc.Execute(ctx, domain.Intent{Action: "UPDATE", Department: "hr", Table: "Employees", Selector: sel, Payload: map[string]domain.Value{"salary": domain.Number(1)}})
	if err != nil || !upd.Success || upd.AffectedCount != 0 {
		t.Fatalf("update: %v %+v", err, upd)
	}
	del, err := f.svc.Execute(ctx, domain.Intent{Action: "DELETE", Department: "hr", Table: "Employees", Selector: sel})
	if err != nil || !del.Success || del.AffectedCount != 0 {
		t.Fatalf("delete: %v %+v", err, del)
	}
	if f.tables.saves.Load() != 0 {
		t.Fatalf("zero-match mutations must not save, got %d saves", f.tables.saves.Load())
	}
	if !sameTable(before, f.table(t, "Employees")) {
		t.Fatalf("table changed")
	}
}

func TestExecuteDeleteTwice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := domain.Intent{Action: "DELETE", Department: "hr", Table: "Employees", Selector: map[string]domain.Value{"dept": text("Eng")}}
	first, err := f.svc.Execute(ctx, in)
	if err != nil || first.AffectedCount != 2 {
		t.Fatalf("first delete: %v %+v", err, first)
	}
	second, err := f.svc.Execute(ctx, in)
	if err != nil || !second.Success || second.AffectedCount != 0 {
		t.Fatalf("second delete: %v %+v", err, second)
	}
	rows := f.table(t, "Employees").Rows
	if len(rows) != 1 || !rows[0]["name"].Equal(text("Linus")) {
		t.Fatalf("remaining rows should be compacted in order: %+v", rows)
	}
}

func TestExecuteInsertUnknownColumnIsSchemaError(t *testing.T) {
	f := newFixture(t)
	before := f.table(t, "Employees")
	_, err := f.svc.Execute(context.Background(), domain.Intent{Action: "INSERT", Department: "hr", Table: "Employees", Payload: map[string]domain.Value{"name": text("X"), "shoe_size": domain.Number(9)}})
	if !errors.Is(err, domain.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
	if !sameTable(before, f.table(t, "Employees")) {
		t.Fatalf("table changed after rejected insert")
	}
}

func TestValidationOrderAndKinds(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		in   domain.Intent
		want error
	}{
		{"unknown action wins over unknown department", domain.Intent{Action: "MERGE", Department: "nowhere"}, domain.ErrUnknownAction},
		{"unknown department", domain.Intent{Action: "READ", Department: "finance", Table: "Employees"}, domain.ErrUnknownDepartment},
		{"missing table", domain.Intent{Action: "READ", Department: "hr", Table: "Payroll"}, domain.ErrNotFound},
		{"registered department without dataset", domain.Intent{Action: "READ", Department: "sales", Table: "Leads"}, domain.ErrNotFound},
		{"blank table", domain.Intent{Action: "READ", Department: "hr"}, domain.ErrNotFound},
		{"insert without payload", domain.Intent{Action: "INSERT", Department: "hr", Table: "Employees"}, domain.ErrSchema},
		{"update without payload", domain.Intent{Action: "UPDATE", Department: "hr", Table: "Employees", Selector: map[string]domain.Value{"name": text("Ada")}}, domain.ErrSchema},
		{"update without selector", domain.Intent{Action: "UPDATE", Department: "hr", Table: "Employees", Payload: map[string]domain.Value{"salary": domain.Number(1)}}, domain.ErrSchema},
		{"delete without selector", domain.Intent{Action: "DELETE", Department: "hr", Table: "Employees"}, domain.ErrSchema},
		{"selector unknown column", domain.Intent{Action: "READ", Department: "hr", Table: "Employees", Selector: map[string]domain.Value{"age": domain.Number(3)}}, domain.ErrSchema},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Execute(context.Background(), tc.in)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !domain.IsValidation(err) {
				t.Fatalf("expected validation family, got %v", err)
			}
		})
	}
	if f.tables.saves.Load() != 0 {
		t.Fatalf("validation must never save")
	}
}

func TestTemplateAndWorkflowResolution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.svc.Execute(ctx, domain.Intent{Action: "TEMPLATE", Department: "hr"})
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if res.Success || !errors.Is(res.Err(), domain.ErrNotFound) {
		t.Fatalf("expected not found result before any upload, got %+v", res)
	}

	rules := "Intro\n[TEMPLATE: leave]\nDear {name}, your leave is approved.\n[WORKFLOW: onboarding]\n1. Laptop\n2. Badge\n[TEMPLATE]\nGeneric letter"
	if err := f.svc.SetRuleText(ctx, "HR", rules); err != nil {
		t.Fatalf("set rules: %v", err)
	}
	res, err = f.svc.Execute(ctx, domain.Intent{Action: "template", Department: "hr", Section: "leave"})
	if err != nil || !res.Success || res.Message != "Dear {name}, your leave is approved." {
		t.Fatalf("named template: %v %+v", err, res)
	}
	if len(res.Data) != 0 {
		t.Fatalf("template results carry no data")
	}
	res, _ = f.svc.Execute(ctx, domain.Intent{Action: "WORKFLOW", Department: "hr", Section: " onboarding "})
	if !res.Success || res.Message != "1. Laptop\n2. Badge" {
		t.Fatalf("workflow: %+v", res)
	}
	res, _ = f.svc.Execute(ctx, domain.Intent{Action: "TEMPLATE", Department: "hr"})
	if !res.Success || res.Message != "Generic letter" {
		t.Fatalf("bare template: %+v", res)
	}
	res, _ = f.svc.Execute(ctx, domain.Intent{Action: "TEMPLATE", Department: "hr", Section: "leav"})
	if res.Success || res.Kind != domain.ErrKindNotFound {
		t.Fatalf("partial names must not match: %+v", res)
	}
	if f.tables.saves.Load() != 0 {
		t.Fatalf("rule lookups never touch the store")
	}
}

func TestCentralRules(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if err := f.svc.SetRuleText(ctx, domain.CentralScope, "Company wide policy"); err != nil {
		t.Fatalf("set central: %v", err)
	}
	res, err := f.svc.Execute(ctx, domain.Intent{Action: "WORKFLOW", Department: "hr", Central: true})
	if err != nil || !res.Success || res.Message != "Company wide policy" {
		t.Fatalf("central workflow: %v %+v", err, res)
	}
	text, err := f.svc.GetRuleText(ctx, "CENTRAL")
	if err != nil || text != "Company wide policy" {
		t.Fatalf("get central: %v %q", err, text)
	}
	if _, err := f.svc.GetRuleText(ctx, "hr"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for hr, got %v", err)
	}
	if _, err := f.svc.GetRuleText(ctx, "legal"); !errors.Is(err, domain.ErrUnknownDepartment) {
		t.Fatalf("expected unknown department, got %v", err)
	}
}

func TestStorageFailureIsRaisedAndStateIntact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	before := f.table(t, "Employees")
	f.tables.FailSaves(errors.New("disk full"))
	_, err := f.svc.Execute(ctx, domain.Intent{Action: "DELETE", Department: "hr", Table: "Employees", Selector: map[string]domain.Value{"dept": text("Eng")}})
	if !errors.Is(err, domain.ErrStorage) || !domain.IsRetryable(err) {
		t.Fatalf("expected retryable storage error, got %v", err)
	}
	f.tables.FailSaves(nil)
	if !sameTable(before, f.table(t, "Employees")) {
		t.Fatalf("failed save must leave the table unchanged")
	}
}

func TestTableRemovedAfterValidationBecomesFailedResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v, err := f.svc.validator.Validate(ctx, domain.Intent{Action: "READ", Department: "hr", Table: "Employees"})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := f.svc.ReplaceDataset(ctx, "hr", domain.Dataset{Tables: []domain.Table{{Name: "Other", Columns: []string{"x"}}}}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	res, err := f.svc.executor.Execute(ctx, v)
	if err != nil {
		t.Fatalf("business failures are results, got error %v", err)
	}
	if res.Success || res.Kind != domain.ErrKindNotFound || !errors.Is(res.Err(), domain.ErrNotFound) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestBusyWhenTableHeld(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithLockTimeout(20*time.Millisecond))
	release, err := f.svc.Guard().Acquire(ctx, keyFor("hr", "Employees"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()
	_, err = f.svc.Execute(ctx, domain.Intent{Action: "READ", Department: "hr", Table: "Employees"})
	if !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	res, err := f.svc.Execute(ctx, domain.Intent{Action: "READ", Department: "hr", Table: "Empty"})
	if err != nil || !res.Success {
		t.Fatalf("other tables stay available: %v %+v", err, res)
	}
}

func TestTablesListing(t *testing.T) {
	f := newFixture(t)
	names, err := f.svc.Tables(context.Background(), "HR")
	if err != nil || len(names) != 2 || names[0] != "Employees" {
		t.Fatalf("tables: %v %v", names, err)
	}
	if _, err := f.svc.Tables(context.Background(), "legal"); !errors.Is(err, domain.ErrUnknownDepartment) {
		t.Fatalf("expected unknown department, got %v", err)
	}
}
