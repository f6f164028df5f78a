package core

import (
	"context"
	"sort"
	"strings"

	"workpal/pkg/domain"
)

// ValidatedIntent is an intent that passed every shape and referential check.
// Department is normalized and Action parsed.
type ValidatedIntent struct {
	Action     domain.Action
	Department string
	Table      string
	Selector   map[string]domain.Value
	Payload    map[string]domain.Value
	// Columns is the table's column order observed during validation.
	Columns []string
	// Scope and Section are set for TEMPLATE and WORKFLOW.
	Scope   domain.Scope
	Section domain.SectionKey
}

// Key is the guard key of a store intent.
func (v ValidatedIntent) Key() LockKey { return keyFor(v.Department, v.Table) }

// Validator performs the pre-execution checks. It never mutates a table.
type Validator struct {
	departments domain.DepartmentRegistry
	tables      domain.TableStore
	guard       *Guard
}

// NewValidator wires a validator to the registry, the store and the guard used
// for the schema lookup.
func NewValidator(departments domain.DepartmentRegistry, tables domain.TableStore, guard *Guard) *Validator {
	return &Validator{departments: departments, tables: tables, guard: guard}
}

// Validate runs, in order: action recognized, department registered, table
// exists, payload present and known, selector present and known. The first
// failing check decides the error.
func (v *Validator) Validate(ctx context.Context, in domain.Intent) (ValidatedIntent, error) {
	action, err := domain.ParseAction(in.Action)
	if err != nil {
		return ValidatedIntent{}, err
	}
	dept := domain.NormalizeDepartment(in.Department)
	if dept == "" || !v.departments.IsRegistered(dept) {
		return ValidatedIntent{}, domain.Errorf(domain.ErrKindUnknownDepartment, "validate", "department %q is not registered", in.Department)
	}
	out := ValidatedIntent{Action: action, Department: dept, Table: strings.TrimSpace(in.Table)}

	if !action.TouchesStore() {
		out.Scope = domain.DepartmentScope(dept)
		if in.Central {
			out.Scope = domain.CentralScope
		}
		out.Section = domain.SectionKey{Kind: domain.SectionKind(action), Name: strings.TrimSpace(in.Section)}
		return out, nil
	}

	if out.Table == "" {
		return ValidatedIntent{}, domain.Errorf(domain.ErrKindNotFound, "validate", "%s requires a table", action)
	}
	var columns []string
	err = v.guard.Do(ctx, out.Key(), func() error {
		var lookupErr error
		columns, lookupErr = v.tables.Columns(ctx, dept, out.Table)
		return lookupErr
	})
	if err != nil {
		return ValidatedIntent{}, err
	}
	out.Columns = columns
	schema := domain.Table{Name: out.Table, Columns: columns}

	switch action {
	case domain.ActionInsert, domain.ActionUpdate:
		if len(in.Payload) == 0 {
			return ValidatedIntent{}, domain.Errorf(domain.ErrKindSchema, "validate", "%s requires a non-empty payload", action)
		}
		if unknown := schema.UnknownColumns(in.Payload); len(unknown) > 0 {
			return ValidatedIntent{}, domain.Errorf(domain.ErrKindSchema, "validate", "unknown columns %s in %s", strings.Join(unknown, ", "), out.Table)
		}
		out.Payload = cloneFields(in.Payload)
	}
	switch action {
	case domain.ActionUpdate, domain.ActionDelete:
		if len(in.Selector) == 0 {
			return ValidatedIntent{}, domain.Errorf(domain.ErrKindSchema, "validate", "%s without a selector would touch every row", action)
		}
	}
	if action != domain.ActionInsert {
		if unknown := schema.UnknownColumns(in.Selector); len(unknown) > 0 {
			return ValidatedIntent{}, domain.Errorf(domain.ErrKindSchema, "validate", "selector references unknown columns %s", strings.Join(unknown, ", "))
		}
		out.Selector = cloneFields(in.Selector)
	}
	return out, nil
}

func cloneFields(in map[string]domain.Value) map[string]domain.Value {
	if in == nil {
		return nil
	}
	out := make(map[string]domain.Value, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]domain.Value) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
