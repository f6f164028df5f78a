package domain

import (
	"errors"
	"strings"
)

// Action is the operation kind an intent requests.
type Action string

const (
	ActionRead     Action = "READ"
	ActionInsert   Action = "INSERT"
	ActionUpdate   Action = "UPDATE"
	ActionDelete   Action = "DELETE"
	ActionTemplate Action = "TEMPLATE"
	ActionWorkflow Action = "WORKFLOW"
)

var knownActions = map[Action]struct{}{
	ActionRead: {}, ActionInsert: {}, ActionUpdate: {}, ActionDelete: {}, ActionTemplate: {}, ActionWorkflow: {},
}

// ParseAction normalizes case and rejects anything outside the six recognized kinds.
func ParseAction(raw string) (Action, error) {
	a := Action(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := knownActions[a]; !ok {
		return "", Errorf(ErrKindUnknownAction, "validate", "unrecognized action %q", raw)
	}
	return a, nil
}

// TouchesStore reports whether the action is served by the tabular store.
func (a Action) TouchesStore() bool {
	switch a {
	case ActionRead, ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Mutates reports whether the action writes to the store.
func (a Action) Mutates() bool {
	switch a {
	case ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Intent is the caller-constructed description of a single operation.
type Intent struct {
	Action     string           `json:"action"`
	Department string           `json:"department"`
	Table      string           `json:"table,omitempty"`
	Selector   map[string]Value `json:"selector,omitempty"`
	Payload    map[string]Value `json:"payload,omitempty"`
	// Section names the template or workflow to resolve; empty selects the bare section.
	Section string `json:"section,omitempty"`
	// Central routes TEMPLATE and WORKFLOW lookups to the shared central rules.
	Central bool `json:"central,omitempty"`
}

// ExecutionResult is the normalized outcome of an executed intent.
type ExecutionResult struct {
	Success       bool      `json:"success"`
	Kind          ErrorKind `json:"kind,omitempty"`
	Message       string    `json:"message"`
	Columns       []string  `json:"columns,omitempty"`
	Data          []Row     `json:"data"`
	AffectedCount int       `json:"affected_count"`
}

// Err rebuilds the typed error of a failed result, or nil on success.
func (r ExecutionResult) Err() error {
	if r.Success {
		return nil
	}
	if r.Kind == "" {
		return errors.New(r.Message)
	}
	return &Error{Kind: r.Kind, Message: r.Message}
}

// Failed converts a business failure into a result.
func Failed(err error) ExecutionResult {
	return ExecutionResult{Success: false, Kind: KindOf(err), Message: err.Error(), Data: []Row{}}
}
