package domain

import (
	"regexp"
	"strings"
	"time"
)

// CentralScope is the shared rule context applying to every department.
const CentralScope = "central"

// Scope identifies a rule document owner: a department key or CentralScope.
type Scope string

// NormalizeDepartment is the case normalization applied to department identifiers.
func NormalizeDepartment(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// DepartmentScope returns the scope of a department.
func DepartmentScope(department string) Scope {
	return Scope(NormalizeDepartment(department))
}

// IsCentral reports whether s is the central scope.
func (s Scope) IsCentral() bool { return s == CentralScope }

// RuleDocument is the uploaded rule text of a scope.
type RuleDocument struct {
	Scope      Scope     `json:"scope"`
	RuleText   string    `json:"rule_text"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// SectionKind is the category of a named rule section.
type SectionKind string

const (
	SectionTemplate SectionKind = "TEMPLATE"
	SectionWorkflow SectionKind = "WORKFLOW"
)

// SectionKey addresses one section of a rule document. Name may be empty for the
// bare section of a kind.
type SectionKey struct {
	Kind SectionKind
	Name string
}

func (k SectionKey) String() string {
	if k.Name == "" {
		return string(k.Kind)
	}
	return string(k.Kind) + ": " + k.Name
}

var sectionHeader = regexp.MustCompile(`^\s*\[(TEMPLATE|WORKFLOW)(?:\s*:\s*([^\]]*?))?\s*\]\s*$`)

// Sections splits rule text into its headed sections. Header lines take the form
// "[TEMPLATE]", "[WORKFLOW]", "[TEMPLATE: name]" or "[WORKFLOW: name]". A document
// without any header exposes its full text under both bare keys. When a key
// repeats, the first occurrence wins.
func (d RuleDocument) Sections() map[SectionKey]string {
	out := make(map[SectionKey]string)
	var (
		current *SectionKey
		body    []string
		headed  bool
	)
	flush := func() {
		if current == nil {
			return
		}
		if _, dup := out[*current]; !dup {
			out[*current] = strings.TrimSpace(strings.Join(body, "\n"))
		}
	}
	for _, line := range strings.Split(d.RuleText, "\n") {
		if m := sectionHeader.FindStringSubmatch(line); m != nil {
			flush()
			headed = true
			key := SectionKey{Kind: SectionKind(m[1]), Name: strings.TrimSpace(m[2])}
			current = &key
			body = body[:0]
			continue
		}
		if current != nil {
			body = append(body, strings.TrimRight(line, "\r"))
		}
	}
	flush()
	if !headed {
		text := strings.TrimSpace(d.RuleText)
		out[SectionKey{Kind: SectionTemplate}] = text
		out[SectionKey{Kind: SectionWorkflow}] = text
	}
	return out
}

// Section resolves a section by exact key; no partial or fuzzy matching.
func (d RuleDocument) Section(key SectionKey) (string, error) {
	text, ok := d.Sections()[key]
	if !ok {
		return "", Errorf(ErrKindNotFound, "rules", "no %s section in %s rules", key, d.Scope)
	}
	return text, nil
}
