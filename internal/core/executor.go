package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"workpal/pkg/domain"
)

// State is the lifecycle stage of an intent inside the engine.
type State string

const (
	StateReceived  State = "received"
	StateValidated State = "validated"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateRejected  State = "rejected"
)

// Executor runs validated intents against the table store or the rule
// repository. Store access always happens under the guard for the intent's
// table, across the whole load-mutate-save cycle.
type Executor struct {
	tables domain.TableStore
	rules  domain.RuleRepository
	guard  *Guard
	log    *zap.Logger
}

// NewExecutor wires an executor.
func NewExecutor(tables domain.TableStore, rules domain.RuleRepository, guard *Guard, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{tables: tables, rules: rules, guard: guard, log: log}
}

// Execute produces one result or one error. Errors are reserved for operational
// failures (storage, busy, cancellation); business failures detected after
// validation come back as an unsuccessful result carrying their kind.
func (e *Executor) Execute(ctx context.Context, v ValidatedIntent) (domain.ExecutionResult, error) {
	e.log.Debug("intent state",
		zap.String("state", string(StateExecuting)),
		zap.String("action", string(v.Action)),
		zap.String("department", v.Department),
		zap.String("table", v.Table),
	)
	var (
		res domain.ExecutionResult
		err error
	)
	switch v.Action {
	case domain.ActionTemplate, domain.ActionWorkflow:
		res, err = e.resolveRules(ctx, v)
	case domain.ActionRead:
		res, err = e.withTable(ctx, v, e.read)
	case domain.ActionInsert:
		res, err = e.withTable(ctx, v, e.insert)
	case domain.ActionUpdate:
		res, err = e.withTable(ctx, v, e.update)
	case domain.ActionDelete:
		res, err = e.withTable(ctx, v, e.delete)
	default:
		return domain.ExecutionResult{}, domain.Errorf(domain.ErrKindUnknownAction, "execute", "unrecognized action %q", v.Action)
	}
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	if res.Data == nil {
		res.Data = []domain.Row{}
	}
	return res, nil
}

type tableOp func(ctx context.Context, v ValidatedIntent, t domain.Table) (domain.ExecutionResult, error)

// withTable loads the table under its guard and hands it to op. Typed business
// errors from the store or op become failed results; everything else is raised.
func (e *Executor) withTable(ctx context.Context, v ValidatedIntent, op tableOp) (domain.ExecutionResult, error) {
	var res domain.ExecutionResult
	err := e.guard.Do(ctx, v.Key(), func() error {
		t, err := e.tables.Load(ctx, v.Department, v.Table)
		if err != nil {
			return err
		}
		res, err = op(ctx, v, t)
		return err
	})
	if err == nil {
		return res, nil
	}
	switch domain.KindOf(err) {
	case domain.ErrKindNotFound, domain.ErrKindSchema:
		e.log.Info("intent failed after validation",
			zap.String("action", string(v.Action)),
			zap.String("department", v.Department),
			zap.String("table", v.Table),
			zap.Error(err),
		)
		return domain.Failed(err), nil
	case domain.ErrKindBusy:
		e.log.Warn("table busy", zap.String("department", v.Department), zap.String("table", v.Table), zap.Error(err))
		return domain.ExecutionResult{}, err
	case domain.ErrKindStorage:
		e.log.Error("storage failure", zap.String("department", v.Department), zap.String("table", v.Table), zap.Error(err))
		return domain.ExecutionResult{}, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.ExecutionResult{}, err
	}
	e.log.Error("storage failure", zap.String("department", v.Department), zap.String("table", v.Table), zap.Error(err))
	return domain.ExecutionResult{}, domain.Wrap(domain.ErrKindStorage, string(v.Action)+" "+v.Table, err)
}

func (e *Executor) read(_ context.Context, v ValidatedIntent, t domain.Table) (domain.ExecutionResult, error) {
	if err := checkDrift(t, v.Selector); err != nil {
		return domain.ExecutionResult{}, err
	}
	matched := make([]domain.Row, 0)
	for _, r := range t.Rows {
		if r.Matches(v.Selector) {
			matched = append(matched, r.Clone())
		}
	}
	return domain.ExecutionResult{
		Success:       true,
		Message:       fmt.Sprintf("%d rows read from %s", len(matched), t.Name),
		Columns:       t.Columns,
		Data:          matched,
		AffectedCount: len(matched),
	}, nil
}

func (e *Executor) insert(ctx context.Context, v ValidatedIntent, t domain.Table) (domain.ExecutionResult, error) {
	if err := checkDrift(t, v.Payload); err != nil {
		return domain.ExecutionResult{}, err
	}
	row := t.NewRow(v.Payload)
	t.Rows = append(t.Rows, row)
	if err := e.tables.Save(ctx, v.Department, v.Table, t); err != nil {
		return domain.ExecutionResult{}, err
	}
	return domain.ExecutionResult{
		Success:       true,
		Message:       fmt.Sprintf("inserted 1 row into %s", t.Name),
		Columns:       t.Columns,
		Data:          []domain.Row{row.Clone()},
		AffectedCount: 1,
	}, nil
}

func (e *Executor) update(ctx context.Context, v ValidatedIntent, t domain.Table) (domain.ExecutionResult, error) {
	if err := checkDrift(t, v.Payload); err != nil {
		return domain.ExecutionResult{}, err
	}
	if err := checkDrift(t, v.Selector); err != nil {
		return domain.ExecutionResult{}, err
	}
	updated := make([]domain.Row, 0)
	for _, r := range t.Rows {
		if !r.Matches(v.Selector) {
			continue
		}
		for col, val := range v.Payload {
			r[col] = val
		}
		updated = append(updated, r.Clone())
	}
	if len(updated) == 0 {
		return domain.ExecutionResult{Success: true, Message: fmt.Sprintf("no rows in %s matched", t.Name), Columns: t.Columns}, nil
	}
	if err := e.tables.Save(ctx, v.Department, v.Table, t); err != nil {
		return domain.ExecutionResult{}, err
	}
	e.log.Debug("rows updated", zap.String("table", t.Name), zap.Strings("columns", sortedKeys(v.Payload)), zap.Int("count", len(updated)))
	return domain.ExecutionResult{
		Success:       true,
		Message:       fmt.Sprintf("updated %d rows in %s", len(updated), t.Name),
		Columns:       t.Columns,
		Data:          updated,
		AffectedCount: len(updated),
	}, nil
}

func (e *Executor) delete(ctx context.Context, v ValidatedIntent, t domain.Table) (domain.ExecutionResult, error) {
	if err := checkDrift(t, v.Selector); err != nil {
		return domain.ExecutionResult{}, err
	}
	kept := make([]domain.Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if !r.Matches(v.Selector) {
			kept = append(kept, r)
		}
	}
	removed := len(t.Rows) - len(kept)
	if removed == 0 {
		return domain.ExecutionResult{Success: true, Message: fmt.Sprintf("no rows in %s matched", t.Name), Columns: t.Columns}, nil
	}
	t.Rows = kept
	if err := e.tables.Save(ctx, v.Department, v.Table, t); err != nil {
		return domain.ExecutionResult{}, err
	}
	return domain.ExecutionResult{
		Success:       true,
		Message:       fmt.Sprintf("deleted %d rows from %s", removed, t.Name),
		Columns:       t.Columns,
		AffectedCount: removed,
	}, nil
}

// checkDrift catches a table re-uploaded between validation and execution with
// columns the intent no longer fits.
func checkDrift(t domain.Table, fields map[string]domain.Value) error {
	if unknown := t.UnknownColumns(fields); len(unknown) > 0 {
		return domain.Errorf(domain.ErrKindSchema, "execute", "table %s no longer has columns %v", t.Name, unknown)
	}
	return nil
}

func (e *Executor) resolveRules(ctx context.Context, v ValidatedIntent) (domain.ExecutionResult, error) {
	doc, err := e.rules.Get(ctx, v.Scope)
	if err == nil {
		var text string
		text, err = doc.Section(v.Section)
		if err == nil {
			return domain.ExecutionResult{Success: true, Message: text, Data: []domain.Row{}}, nil
		}
	}
	if domain.KindOf(err) == domain.ErrKindNotFound {
		e.log.Info("rule section not found", zap.String("scope", string(v.Scope)), zap.String("section", v.Section.String()))
		return domain.Failed(err), nil
	}
	if domain.KindOf(err) == "" {
		err = domain.Wrap(domain.ErrKindStorage, "rules "+string(v.Scope), err)
	}
	return domain.ExecutionResult{}, err
}
