package document

import (
	"bytes"
	"context"
	"fmt"
	"time"
)

// Extraction limits.
const (
	DefaultMaxUploadBytes = 5_000_000
	MinUploadBytes        = 64_000
	MaxUploadBytes        = 20_000_000
	DefaultExtractTimeout = 4 * time.Second
	maxModelTextLen       = 50_000
)

var pdfMagic = []byte("%PDF-")

// ExtractedText is what a TextExtractor produced from one upload.
// Model is the length-capped slice safe to hand to a generator; Full
// is the complete text used for the privacy scan.
type ExtractedText struct {
	Full  string
	Model string
	Pages int
}

// TextExtractor pulls the text layer out of an uploaded document.
// Implementations may be CPU-heavy; callers bound them with a hard
// timeout via extractWithTimeout.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (ExtractedText, error)
}

// ErrExtractTimeout is returned when the extractor misses its
// wall-clock budget.
var ErrExtractTimeout = fmt.Errorf("text extraction timed out")

// extractWithTimeout runs the extractor in its own goroutine and
// abandons it when the budget elapses. A hostile document can burn a
// goroutine but cannot hang the request path.
func extractWithTimeout(ctx context.Context, ex TextExtractor, data []byte, timeout time.Duration) (ExtractedText, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		text ExtractedText
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		text, err := ex.ExtractText(ctx, data)
		ch <- result{text: text, err: err}
	}()

	select {
	case r := <-ch:
		return r.text, r.err
	case <-ctx.Done():
		return ExtractedText{}, ErrExtractTimeout
	}
}

// validatePDF rejects payloads that are not PDF before any extractor
// sees them.
func validatePDF(data []byte, maxBytes int) error {
	if len(data) == 0 {
		return fmt.Errorf("empty upload")
	}
	if len(data) > maxBytes {
		return fmt.Errorf("upload exceeds %d bytes", maxBytes)
	}
	if !bytes.HasPrefix(data, pdfMagic) {
		return fmt.Errorf("invalid PDF header")
	}
	return nil
}

// capModelText trims the model slice without touching the full text.
func capModelText(t ExtractedText) ExtractedText {
	if len(t.Model) == 0 {
		t.Model = t.Full
	}
	if len(t.Model) > maxModelTextLen {
		t.Model = t.Model[:maxModelTextLen]
	}
	return t
}
