package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// PDFToTextExtractor shells out to the poppler pdftotext binary,
// reading the PDF from stdin and the text layer from stdout. The
// document bytes never touch the filesystem.
type PDFToTextExtractor struct {
	bin string
}

func NewPDFToTextExtractor() *PDFToTextExtractor {
	return &PDFToTextExtractor{bin: "pdftotext"}
}

func (e *PDFToTextExtractor) ExtractText(ctx context.Context, data []byte) (ExtractedText, error) {
	cmd := exec.CommandContext(ctx, e.bin, "-layout", "-", "-")
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return ExtractedText{}, fmt.Errorf("pdftotext exited with code %d", ee.ExitCode())
		}
		return ExtractedText{}, fmt.Errorf("pdftotext: %w", err)
	}

	full := stdout.String()
	// pdftotext emits a form feed per page boundary.
	pages := strings.Count(full, "\f")
	if pages == 0 && strings.TrimSpace(full) != "" {
		pages = 1
	}
	return capModelText(ExtractedText{Full: full, Pages: pages}), nil
}
