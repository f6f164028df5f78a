package domain

import "context"

// TableStore is the tabular store adapter. Implementations are not required to
// be safe for concurrent mutation of the same (department, table); the engine's
// guard serializes those.
type TableStore interface {
	// Load returns a private copy of the table. NotFound when the department has
	// no dataset or the table is absent.
	Load(ctx context.Context, department, table string) (Table, error)
	// Save overwrites the table's backing in full. Rows that do not carry exactly
	// the established columns fail with a schema error.
	Save(ctx context.Context, department, table string, t Table) error
	// Columns returns the table's established column order.
	Columns(ctx context.Context, department, table string) ([]string, error)
	// Tables lists the department's table names in dataset order.
	Tables(ctx context.Context, department string) ([]string, error)
	// Replace swaps the department's whole dataset.
	Replace(ctx context.Context, department string, ds Dataset) error
}

// RuleRepository stores one rule document per scope.
type RuleRepository interface {
	// Get returns the scope's document; NotFound when nothing was uploaded.
	Get(ctx context.Context, scope Scope) (RuleDocument, error)
	// Put overwrites the scope's document.
	Put(ctx context.Context, doc RuleDocument) error
}

// DepartmentRegistry answers which departments were set up.
type DepartmentRegistry interface {
	IsRegistered(department string) bool
}

// SpreadsheetCodec converts workbook bytes to and from datasets.
type SpreadsheetCodec interface {
	Read(data []byte) (Dataset, error)
	Write(ds Dataset) ([]byte, error)
}

// RuleTextExtractor reads plain text from an uploaded rule document.
type RuleTextExtractor interface {
	Extract(ctx context.Context, blob []byte, mimeHint string) (string, error)
}

// Department is a registered department: its normalized key and the spelling it
// was first set up with.
type Department struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// DepartmentStore persists the department registry across restarts.
type DepartmentStore interface {
	// LoadDepartments returns every persisted department.
	LoadDepartments(ctx context.Context) ([]Department, error)
	// SaveDepartment records a department. Saving a known key keeps the stored
	// name.
	SaveDepartment(ctx context.Context, d Department) error
}
