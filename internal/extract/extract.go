// Package extract reads plain rule text out of uploaded documents.
package extract

import (
	"context"
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"workpal/pkg/domain"
)

// MIME types handled by the built-in extractors.
const (
	MIMEPlainText = "text/plain"
	MIMEMarkdown  = "text/markdown"
	MIMEPDF       = "application/pdf"
	MIMEDOCX      = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var extensionMIME = map[string]string{
	".txt":  MIMEPlainText,
	".text": MIMEPlainText,
	".md":   MIMEMarkdown,
	".pdf":  MIMEPDF,
	".docx": MIMEDOCX,
}

// Extractor converts one document format to text.
type Extractor interface {
	SupportedMIMETypes() []string
	Extract(ctx context.Context, data []byte) (string, error)
}

// Registry dispatches by MIME type. It implements domain.RuleTextExtractor.
type Registry struct {
	byMIME map[string]Extractor
}

var _ domain.RuleTextExtractor = (*Registry)(nil)

// NewRegistry registers the given extractors; later registrations win on overlap.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byMIME: make(map[string]Extractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Default returns a registry with the plain text, PDF and DOCX extractors.
func Default() *Registry {
	return NewRegistry(NewPlainText(), NewPDF(), NewDOCX())
}

// Register adds an extractor for each MIME type it supports.
func (r *Registry) Register(e Extractor) {
	for _, m := range e.SupportedMIMETypes() {
		r.byMIME[m] = e
	}
}

// SupportedMIMETypes lists every registered MIME type, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	out := make([]string, 0, len(r.byMIME))
	for m := range r.byMIME {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Extract reads text from data. mimeHint is either a MIME type (parameters
// allowed) or a filename whose extension identifies the format.
func (r *Registry) Extract(ctx context.Context, data []byte, mimeHint string) (string, error) {
	m := Resolve(mimeHint, "")
	e, ok := r.byMIME[m]
	if !ok {
		return "", domain.Errorf(domain.ErrKindUnsupportedFormat, "extract", "unsupported rule document type %q", mimeHint)
	}
	return e.Extract(ctx, data)
}

// Resolve picks a MIME type from a declared content type and a filename. A
// specific declared type wins; generic or missing types fall back to the
// filename extension.
func Resolve(contentType, filename string) string {
	if m := parseMIME(contentType); m != "" && m != "application/octet-stream" {
		return m
	}
	if filename == "" && strings.Contains(contentType, ".") {
		filename = contentType
	}
	return extensionMIME[strings.ToLower(filepath.Ext(filename))]
}

func parseMIME(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || !strings.Contains(v, "/") {
		return ""
	}
	m, _, err := mime.ParseMediaType(v)
	if err != nil {
		return ""
	}
	return strings.ToLower(m)
}
