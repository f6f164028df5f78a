package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"workpal/pkg/domain"
)

func TestGetBeforeUploadIsNotFound(t *testing.T) {
	s := NewStore()
	if _, err := s.Get(context.Background(), "hr"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPutOverwritesAndNormalizesScope(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	if err := s.Put(ctx, domain.RuleDocument{Scope: "HR", RuleText: "v1"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, domain.RuleDocument{Scope: "hr", RuleText: "v2"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	doc, err := s.Get(ctx, " Hr ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.RuleText != "v2" || !doc.UploadedAt.Equal(fixed) || doc.Scope != "hr" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if _, err := s.Get(ctx, "HR "); err != nil {
		t.Fatalf("scope lookup must normalize: %v", err)
	}
}

func TestImportStateReplacesContent(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	_ = s.Put(ctx, domain.RuleDocument{Scope: "hr", RuleText: "dropped"})
	s.ImportState(Snapshot{Documents: map[domain.Scope]domain.RuleDocument{
		"CENTRAL": {Scope: domain.CentralScope, RuleText: "[TEMPLATE]\nhello"},
	}})
	doc, err := s.Get(ctx, domain.CentralScope)
	if err != nil || doc.RuleText != "[TEMPLATE]\nhello" {
		t.Fatalf("import: %v %+v", err, doc)
	}
	if _, err := s.Get(ctx, "hr"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("import should replace earlier documents, got %v", err)
	}
}
