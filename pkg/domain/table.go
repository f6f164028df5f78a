package domain

import (
	"sort"
	"strings"
)

// Row maps column names to values. Rows carry no positional identity; callers
// address them with selectors.
type Row map[string]Value

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Matches reports whether every selector column equals the row's value.
// An empty selector matches every row.
func (r Row) Matches(selector map[string]Value) bool {
	for col, want := range selector {
		got, ok := r[col]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// Table is an ordered row set with a fixed ordered column list.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (t Table) Clone() Table {
	cp := Table{Name: t.Name, Columns: append([]string(nil), t.Columns...)}
	if t.Rows != nil {
		cp.Rows = make([]Row, len(t.Rows))
		for i, r := range t.Rows {
			cp.Rows[i] = r.Clone()
		}
	}
	return cp
}

// HasColumn reports whether col is part of the established column set.
func (t Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// UnknownColumns returns the keys of fields that are not table columns, sorted.
func (t Table) UnknownColumns(fields map[string]Value) []string {
	var unknown []string
	for col := range fields {
		if !t.HasColumn(col) {
			unknown = append(unknown, col)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// NewRow builds a row holding every table column; columns absent from fields are
// filled with the Empty marker.
func (t Table) NewRow(fields map[string]Value) Row {
	row := make(Row, len(t.Columns))
	for _, c := range t.Columns {
		if v, ok := fields[c]; ok {
			row[c] = v
		} else {
			row[c] = Empty()
		}
	}
	return row
}

// CheckSchema verifies that every row has exactly the table's column set and that
// column names are unique and non-empty.
func (t Table) CheckSchema() error {
	seen := make(map[string]struct{}, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c) == "" {
			return Errorf(ErrKindSchema, "table "+t.Name, "empty column name")
		}
		if _, dup := seen[c]; dup {
			return Errorf(ErrKindSchema, "table "+t.Name, "duplicate column %q", c)
		}
		seen[c] = struct{}{}
	}
	for i, r := range t.Rows {
		if unknown := t.UnknownColumns(r); len(unknown) > 0 {
			return Errorf(ErrKindSchema, "table "+t.Name, "row %d has unknown columns %s", i, strings.Join(unknown, ", "))
		}
		for _, c := range t.Columns {
			if _, ok := r[c]; !ok {
				return Errorf(ErrKindSchema, "table "+t.Name, "row %d is missing column %q", i, c)
			}
		}
	}
	return nil
}

// Dataset is a department's full set of named tables, in workbook order.
type Dataset struct {
	Tables []Table `json:"tables"`
}

// Table finds a table by exact name.
func (d Dataset) Table(name string) (Table, bool) {
	for _, t := range d.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Names lists table names in dataset order.
func (d Dataset) Names() []string {
	out := make([]string, 0, len(d.Tables))
	for _, t := range d.Tables {
		out = append(out, t.Name)
	}
	return out
}

// Clone deep-copies every table.
func (d Dataset) Clone() Dataset {
	out := Dataset{Tables: make([]Table, len(d.Tables))}
	for i, t := range d.Tables {
		out.Tables[i] = t.Clone()
	}
	return out
}

// Put replaces the table with the same name, or appends it.
func (d *Dataset) Put(t Table) {
	for i := range d.Tables {
		if d.Tables[i].Name == t.Name {
			d.Tables[i] = t
			return
		}
	}
	d.Tables = append(d.Tables, t)
}

// CheckAgainst verifies t keeps the established column order and that every row
// conforms to it. Stores call it before overwriting a table.
func (t Table) CheckAgainst(established []string) error {
	if len(t.Columns) != len(established) {
		return Errorf(ErrKindSchema, "table "+t.Name, "columns %v do not match established %v", t.Columns, established)
	}
	for i := range established {
		if t.Columns[i] != established[i] {
			return Errorf(ErrKindSchema, "table "+t.Name, "columns %v do not match established %v", t.Columns, established)
		}
	}
	return t.CheckSchema()
}
