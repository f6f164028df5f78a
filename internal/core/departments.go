package core

import (
	"sort"
	"strings"
	"sync"

	"workpal/pkg/domain"
)

// Departments is the registry of departments that were set up. Identifiers are
// matched case-insensitively; the first spelling registered is kept for display.
type Departments struct {
	mu    sync.RWMutex
	names map[string]string
}

var _ domain.DepartmentRegistry = (*Departments)(nil)

// NewDepartments registers the given names.
func NewDepartments(names ...string) *Departments {
	d := &Departments{names: make(map[string]string)}
	d.Register(names...)
	return d
}

// Register adds departments and returns the normalized keys it accepted. Blank
// names and the reserved central scope are skipped.
func (d *Departments) Register(names ...string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var added []string
	for _, n := range names {
		key := domain.NormalizeDepartment(n)
		if key == "" || key == domain.CentralScope {
			continue
		}
		if _, ok := d.names[key]; !ok {
			d.names[key] = strings.TrimSpace(n)
		}
		added = append(added, key)
	}
	return added
}

// IsRegistered reports whether the department was set up.
func (d *Departments) IsRegistered(department string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.names[domain.NormalizeDepartment(department)]
	return ok
}

// List returns registered departments sorted by key.
func (d *Departments) List() []domain.Department {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Department, 0, len(d.names))
	for k, name := range d.names {
		out = append(out, domain.Department{Key: k, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
