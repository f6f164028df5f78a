package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"workpal/pkg/domain"
)

// DOCX reads paragraph text from word/document.xml.
type DOCX struct{}

// NewDOCX returns the DOCX extractor.
func NewDOCX() *DOCX { return &DOCX{} }

func (*DOCX) SupportedMIMETypes() []string { return []string{MIMEDOCX} }

type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

// Extract joins paragraphs with newlines so section headers keep their own line.
func (*DOCX) Extract(_ context.Context, data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.Wrap(domain.ErrKindCorruptFile, "extract docx", err)
	}
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", domain.Wrap(domain.ErrKindCorruptFile, "extract docx", err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", domain.Wrap(domain.ErrKindCorruptFile, "extract docx", err)
		}
		var doc documentXML
		if err := xml.Unmarshal(content, &doc); err != nil {
			return "", domain.Wrap(domain.ErrKindCorruptFile, "extract docx", err)
		}
		var b strings.Builder
		for i, para := range doc.Body.Paragraphs {
			if i > 0 {
				b.WriteString("\n")
			}
			for _, r := range para.Runs {
				for _, t := range r.Text {
					b.WriteString(t.Content)
				}
			}
		}
		return strings.TrimSpace(b.String()), nil
	}
	return "", domain.Errorf(domain.ErrKindCorruptFile, "extract docx", "word/document.xml missing")
}
