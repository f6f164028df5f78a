package core

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"workpal/internal/extract"
	"workpal/internal/infra/codec/xlsx"
	"workpal/pkg/domain"
)

// Service is the engine facade: it validates and executes intents, serves rule
// text, and accepts department setup and uploads.
type Service struct {
	tables      domain.TableStore
	rules       domain.RuleRepository
	departments *Departments
	deptStore   domain.DepartmentStore
	guard       *Guard
	validator   *Validator
	executor    *Executor
	extractor   domain.RuleTextExtractor
	codec       domain.SpreadsheetCodec

	log     *zap.Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
	now     func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.audit = r
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(r MetricsRecorder) Option {
	return func(s *Service) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithLockTimeout bounds how long an intent waits for a busy table.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) { s.guard = NewGuard(d) }
}

// WithDepartments registers departments at construction.
func WithDepartments(names ...string) Option {
	return func(s *Service) { s.departments.Register(names...) }
}

// WithDepartmentStore persists departments set up through SetupDepartments.
// Without one the registry lives only in memory.
func WithDepartmentStore(ds domain.DepartmentStore) Option {
	return func(s *Service) { s.deptStore = ds }
}

// WithExtractor replaces the rule document extractor.
func WithExtractor(e domain.RuleTextExtractor) Option {
	return func(s *Service) {
		if e != nil {
			s.extractor = e
		}
	}
}

// WithCodec replaces the spreadsheet codec used for dataset uploads.
func WithCodec(c domain.SpreadsheetCodec) Option {
	return func(s *Service) {
		if c != nil {
			s.codec = c
		}
	}
}

// WithClock overrides the time source used for upload stamps and audit entries.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService builds a service over the given stores.
func NewService(tables domain.TableStore, rules domain.RuleRepository, opts ...Option) *Service {
	s := &Service{
		tables:      tables,
		rules:       rules,
		departments: NewDepartments(),
		guard:       NewGuard(DefaultLockTimeout),
		extractor:   extract.Default(),
		codec:       xlsx.New(),
		log:         zap.NewNop(),
		audit:       noopAudit{},
		metrics:     noopMetrics{},
		tracer:      noopTracer{},
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = NewValidator(s.departments, s.tables, s.guard)
	s.executor = NewExecutor(s.tables, s.rules, s.guard, s.log)
	return s
}

// Departments returns the registry.
func (s *Service) Departments() *Departments { return s.departments }

// ListDepartments returns the registered departments sorted by key.
func (s *Service) ListDepartments() []domain.Department { return s.departments.List() }

// LoadDepartments registers every department held by the department store.
func (s *Service) LoadDepartments(ctx context.Context) error {
	if s.deptStore == nil {
		return nil
	}
	stored, err := s.deptStore.LoadDepartments(ctx)
	if err != nil {
		return err
	}
	for _, d := range stored {
		name := d.Name
		if name == "" {
			name = d.Key
		}
		s.departments.Register(name)
	}
	s.log.Debug("departments loaded", zap.Int("count", len(stored)))
	return nil
}

// Guard returns the table guard shared by validation, execution and uploads.
func (s *Service) Guard() *Guard { return s.guard }

// Execute validates and runs one intent.
//
// Validation failures and operational failures (storage, busy) are returned as
// errors and leave every table untouched. Failures discovered after validation,
// such as a table removed by a concurrent re-upload or a missing rule section,
// are returned as a result with Success false and the failure kind set.
func (s *Service) Execute(ctx context.Context, in domain.Intent) (res domain.ExecutionResult, err error) {
	const op = "execute_intent"
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	defer func() {
		outcome := err
		if outcome == nil {
			outcome = res.Err()
		}
		span.End(outcome)
		s.metrics.Observe(ctx, op, outcome == nil, time.Since(start))
		s.record(ctx, op, in, res, outcome)
	}()

	log := s.log.With(zap.String("action", in.Action), zap.String("department", in.Department), zap.String("table", in.Table))
	log.Debug("intent state", zap.String("state", string(StateReceived)))

	v, err := s.validator.Validate(ctx, in)
	if err != nil {
		if domain.IsValidation(err) {
			log.Info("intent rejected", zap.String("state", string(StateRejected)), zap.Error(err))
		} else {
			log.Warn("intent validation failed", zap.Error(err))
		}
		return domain.ExecutionResult{}, err
	}
	log.Debug("intent state", zap.String("state", string(StateValidated)))

	res, err = s.executor.Execute(ctx, v)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	log.Debug("intent state", zap.String("state", string(StateCompleted)), zap.Bool("success", res.Success), zap.Int("affected", res.AffectedCount))
	return res, nil
}

// GetRuleText returns the full rule text of a scope: a department key or
// domain.CentralScope.
func (s *Service) GetRuleText(ctx context.Context, scope domain.Scope) (string, error) {
	doc, err := s.RuleDocument(ctx, scope)
	if err != nil {
		return "", err
	}
	return doc.RuleText, nil
}

// RuleDocument returns the stored document of a scope.
func (s *Service) RuleDocument(ctx context.Context, scope domain.Scope) (domain.RuleDocument, error) {
	scope = domain.Scope(domain.NormalizeDepartment(string(scope)))
	if !scope.IsCentral() && !s.departments.IsRegistered(string(scope)) {
		return domain.RuleDocument{}, domain.Errorf(domain.ErrKindUnknownDepartment, "rules", "department %q is not registered", scope)
	}
	return s.rules.Get(ctx, scope)
}

// SetRuleText stores rule text for a scope directly, replacing any earlier upload.
func (s *Service) SetRuleText(ctx context.Context, scope domain.Scope, text string) error {
	scope = domain.Scope(domain.NormalizeDepartment(string(scope)))
	if !scope.IsCentral() && !s.departments.IsRegistered(string(scope)) {
		return domain.Errorf(domain.ErrKindUnknownDepartment, "rules", "department %q is not registered", scope)
	}
	return s.rules.Put(ctx, domain.RuleDocument{Scope: scope, RuleText: text, UploadedAt: s.now()})
}

// Tables lists a department's table names.
func (s *Service) Tables(ctx context.Context, department string) ([]string, error) {
	if !s.departments.IsRegistered(department) {
		return nil, domain.Errorf(domain.ErrKindUnknownDepartment, "tables", "department %q is not registered", department)
	}
	return s.tables.Tables(ctx, domain.NormalizeDepartment(department))
}

func (s *Service) record(ctx context.Context, op string, in domain.Intent, res domain.ExecutionResult, err error) {
	entry := AuditEntry{
		ID:            uuid.NewString(),
		Operation:     op,
		Department:    domain.NormalizeDepartment(in.Department),
		Table:         in.Table,
		Action:        in.Action,
		Status:        AuditStatusSuccess,
		AffectedCount: res.AffectedCount,
		OccurredAt:    s.now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Kind = string(domain.KindOf(err))
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// observe wraps non-intent operations with the same tracing, metrics and audit.
func (s *Service) observe(ctx context.Context, op, department string, fn func(ctx context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := time.Now()
	err := fn(ctx)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, time.Since(start))
	s.record(ctx, op, domain.Intent{Department: department}, domain.ExecutionResult{}, err)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Info(op+" failed", zap.String("department", department), zap.Error(err))
	}
	return err
}
