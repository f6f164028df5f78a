package core

import (
	"context"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"workpal/internal/extract"
	"workpal/internal/infra/codec/xlsx"
	"workpal/pkg/domain"
)

// WorkbookContentType is the MIME type of uploaded and exported datasets.
const WorkbookContentType = xlsx.ContentType

// SetupDepartments registers departments and returns their normalized keys in
// request order.
func (s *Service) SetupDepartments(ctx context.Context, names []string) ([]string, error) {
	var keys []string
	err := s.observe(ctx, "setup_departments", "", func(ctx context.Context) error {
		for _, n := range names {
			key := domain.NormalizeDepartment(n)
			if key == "" || key == domain.CentralScope {
				continue
			}
			keys = append(keys, key)
			if s.departments.IsRegistered(key) {
				continue
			}
			// persist before registering
			if s.deptStore != nil {
				if err := s.deptStore.SaveDepartment(ctx, domain.Department{Key: key, Name: strings.TrimSpace(n)}); err != nil {
					if domain.KindOf(err) == "" {
						err = domain.Wrap(domain.ErrKindStorage, "setup "+key, err)
					}
					return err
				}
			}
			s.departments.Register(n)
		}
		if len(keys) == 0 {
			return domain.Errorf(domain.ErrKindUnknownDepartment, "setup", "no valid department names given")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("departments registered", zap.Strings("departments", keys))
	return keys, nil
}

// UploadRules extracts text from an uploaded rule document and stores it as the
// scope's rules, replacing any earlier upload.
func (s *Service) UploadRules(ctx context.Context, scope domain.Scope, filename, contentType string, data []byte) (domain.RuleDocument, error) {
	scope = domain.Scope(domain.NormalizeDepartment(string(scope)))
	var doc domain.RuleDocument
	err := s.observe(ctx, "upload_rules", string(scope), func(ctx context.Context) error {
		if !scope.IsCentral() && !s.departments.IsRegistered(string(scope)) {
			return domain.Errorf(domain.ErrKindUnknownDepartment, "upload rules", "department %q is not registered", scope)
		}
		if len(data) == 0 {
			return domain.Errorf(domain.ErrKindCorruptFile, "upload rules", "uploaded rule document is empty")
		}
		hint := extract.Resolve(contentType, filename)
		if hint == "" {
			return domain.Errorf(domain.ErrKindUnsupportedFormat, "upload rules", "unsupported rule document %q (%s)", filename, contentType)
		}
		text, err := s.extractor.Extract(ctx, data, hint)
		if err != nil {
			return err
		}
		doc = domain.RuleDocument{Scope: scope, RuleText: text, UploadedAt: s.now()}
		return s.rules.Put(ctx, doc)
	})
	if err != nil {
		return domain.RuleDocument{}, err
	}
	s.log.Info("rules uploaded", zap.String("scope", string(scope)), zap.String("filename", filename), zap.Int("chars", len(doc.RuleText)))
	return doc, nil
}

// UploadDataset replaces a department's whole dataset with an uploaded .xlsx
// workbook. Every table of the old and new dataset is locked for the swap, so no
// intent observes a half-replaced department.
func (s *Service) UploadDataset(ctx context.Context, department, filename, contentType string, data []byte) ([]string, error) {
	dept := domain.NormalizeDepartment(department)
	var names []string
	err := s.observe(ctx, "upload_dataset", dept, func(ctx context.Context) error {
		if !s.departments.IsRegistered(dept) {
			return domain.Errorf(domain.ErrKindUnknownDepartment, "upload dataset", "department %q is not registered", department)
		}
		if strings.ToLower(filepath.Ext(filename)) != ".xlsx" {
			return domain.Errorf(domain.ErrKindUnsupportedFormat, "upload dataset", "only .xlsx workbooks are supported, got %q", filename)
		}
		if ct := strings.TrimSpace(contentType); ct != "" && ct != WorkbookContentType && ct != "application/octet-stream" {
			return domain.Errorf(domain.ErrKindUnsupportedFormat, "upload dataset", "invalid content type %q for a workbook", contentType)
		}
		if len(data) == 0 {
			return domain.Errorf(domain.ErrKindCorruptFile, "upload dataset", "uploaded workbook is empty")
		}
		ds, err := s.codec.Read(data)
		if err != nil {
			return err
		}
		names = ds.Names()
		return s.ReplaceDataset(ctx, dept, ds)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("dataset uploaded", zap.String("department", dept), zap.Strings("tables", names))
	return names, nil
}

// ReplaceDataset swaps the department's dataset under the locks of every table
// it had and every table it will have.
func (s *Service) ReplaceDataset(ctx context.Context, department string, ds domain.Dataset) error {
	dept := domain.NormalizeDepartment(department)
	keys := make([]LockKey, 0, len(ds.Tables))
	for _, name := range ds.Names() {
		keys = append(keys, keyFor(dept, name))
	}
	// Listed before locking: a table created after this point is unguarded here,
	// which is safe only because Save re-checks that its table still exists.
	if existing, err := s.tables.Tables(ctx, dept); err == nil {
		for _, name := range existing {
			keys = append(keys, keyFor(dept, name))
		}
	} else if domain.KindOf(err) != domain.ErrKindNotFound {
		return err
	}
	return s.guard.DoAll(ctx, keys, func() error {
		return s.tables.Replace(ctx, dept, ds)
	})
}

// ExportDataset encodes the department's current dataset as an .xlsx workbook.
// All tables are read under their locks so the export is a consistent snapshot.
func (s *Service) ExportDataset(ctx context.Context, department string) ([]byte, error) {
	dept := domain.NormalizeDepartment(department)
	var out []byte
	err := s.observe(ctx, "export_dataset", dept, func(ctx context.Context) error {
		if !s.departments.IsRegistered(dept) {
			return domain.Errorf(domain.ErrKindUnknownDepartment, "export dataset", "department %q is not registered", department)
		}
		names, err := s.tables.Tables(ctx, dept)
		if err != nil {
			return err
		}
		keys := make([]LockKey, 0, len(names))
		for _, name := range names {
			keys = append(keys, keyFor(dept, name))
		}
		var ds domain.Dataset
		err = s.guard.DoAll(ctx, keys, func() error {
			for _, name := range names {
				t, err := s.tables.Load(ctx, dept, name)
				if err != nil {
					return err
				}
				ds.Tables = append(ds.Tables, t)
			}
			return nil
		})
		if err != nil {
			return err
		}
		out, err = s.codec.Write(ds)
		return err
	})
	return out, err
}
