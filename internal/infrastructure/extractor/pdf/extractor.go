package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

const DefaultMaxPages = 50

// Parser extracts the embedded text layer of a PDF. Scanned pages come back
// empty; OCR happens outside this service.
type Parser struct {
	maxPages int
}

func NewParser(maxPages int) *Parser {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Parser{maxPages: maxPages}
}

func (p *Parser) Parse(ctx context.Context, raw []byte) (out domain.ExtractedText, err error) {
	// The pdf package panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrInvalidInput, "parse pdf", fmt.Errorf("malformed document: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrInvalidInput, "parse pdf", err)
	}

	pages := min(reader.NumPage(), p.maxPages)
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return domain.ExtractedText{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return domain.ExtractedText{}, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(content)
	}
	return domain.NewExtractedText(sb.String(), domain.TextSourcePDFParse), nil
}
