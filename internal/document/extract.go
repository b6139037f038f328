// Package document turns uploaded files into retrievable text chunks.
package document

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// ExtractText reads the entire content of r and extracts plain text from
// the PDF. The PDF reader needs random access, so the input is buffered
// in memory; callers should cap upload sizes before reaching here.
func ExtractText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	if len(b) == 0 {
		return "", fmt.Errorf("document is empty")
	}

	readerAt := bytes.NewReader(b)
	pdfReader, err := pdf.NewReader(readerAt, int64(len(b)))
	if err != nil {
		return "", fmt.Errorf("parsing PDF: %w", err)
	}

	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", fmt.Errorf("reading extracted text: %w", err)
	}
	return string(out), nil
}
