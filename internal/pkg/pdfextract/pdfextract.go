package pdfextract

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
)

var excessBlankLines = regexp.MustCompile(`\n{3,}`)

// ExtractText reads the entire content of r and extracts plain text from
// the PDF, normalized so the result chunks cleanly: trailing whitespace
// stripped per line, runs of blank lines collapsed to one paragraph
// break. Returns empty string and nil error if the PDF has no
// extractable text.
func ExtractText(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", nil
	}
	readerAt := bytes.NewReader(b)
	pdfReader, err := pdf.NewReader(readerAt, int64(len(b)))
	if err != nil {
		return "", err
	}
	plainReader, err := pdfReader.GetPlainText()
	if err != nil {
		return "", err
	}
	out, err := io.ReadAll(plainReader)
	if err != nil {
		return "", err
	}
	return normalize(string(out)), nil
}

func normalize(text string) string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " \t")
	}
	joined := strings.Join(lines, "\n")
	joined = excessBlankLines.ReplaceAllString(joined, "\n\n")
	return strings.TrimSpace(joined)
}
