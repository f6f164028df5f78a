package extract

import (
	"bytes"
	"context"
	"unicode/utf8"

	"workpal/pkg/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// PlainText accepts UTF-8 text documents.
type PlainText struct{}

// NewPlainText returns the plain text extractor.
func NewPlainText() *PlainText { return &PlainText{} }

func (*PlainText) SupportedMIMETypes() []string { return []string{MIMEPlainText, MIMEMarkdown} }

// Extract returns the text with any byte order mark and CRLF line endings removed.
func (*PlainText) Extract(_ context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", domain.Errorf(domain.ErrKindCorruptFile, "extract text", "document is not valid UTF-8")
	}
	return string(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))), nil
}
