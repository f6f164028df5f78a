package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"workpal/pkg/domain"
)

// ErrToolNotFound is the cause of the unsupported_format error returned when
// pdftotext is not installed.
var ErrToolNotFound = errors.New("pdftotext not found in PATH; install poppler-utils to read PDF rule documents")

// CommandRunner runs an external command and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// PDF extracts text with the poppler pdftotext tool.
type PDF struct {
	runner   CommandRunner
	lookPath func(string) (string, error)
}

// NewPDF returns a PDF extractor that shells out to pdftotext.
func NewPDF() *PDF { return &PDF{runner: execRunner{}, lookPath: exec.LookPath} }

// NewPDFWithRunner swaps the command runner; lookPath may be nil to skip the
// tool presence check.
func NewPDFWithRunner(runner CommandRunner, lookPath func(string) (string, error)) *PDF {
	return &PDF{runner: runner, lookPath: lookPath}
}

func (*PDF) SupportedMIMETypes() []string { return []string{MIMEPDF} }

// Extract writes data to a temporary file and reads it back through pdftotext.
// Pages are separated by form feeds in the tool output; they become blank lines.
func (p *PDF) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) < 5 || string(data[:5]) != "%PDF-" {
		return "", domain.Errorf(domain.ErrKindCorruptFile, "extract pdf", "missing PDF header")
	}
	if p.lookPath != nil {
		if _, err := p.lookPath("pdftotext"); err != nil {
			return "", domain.Wrap(domain.ErrKindUnsupportedFormat, "extract pdf", ErrToolNotFound)
		}
	}
	tmp, err := os.CreateTemp("", "workpal-rules-*.pdf")
	if err != nil {
		return "", fmt.Errorf("extract pdf: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("extract pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("extract pdf: %w", err)
	}
	out, err := p.runner.Run(ctx, "pdftotext", "-enc", "UTF-8", "-layout", tmp.Name(), "-")
	if err != nil {
		return "", domain.Wrap(domain.ErrKindCorruptFile, "extract pdf", err)
	}
	text := strings.ReplaceAll(string(out), "\f", "\n")
	return strings.TrimSpace(text), nil
}
