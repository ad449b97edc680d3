package spreadsheet

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

// Parser flattens a workbook to text: one line per row, cells separated by
// tabs, sheets in workbook order.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(ctx context.Context, raw []byte) (domain.ExtractedText, error) {
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrInvalidInput, "open workbook", err)
	}
	defer func() {
		_ = book.Close()
	}()

	var sb strings.Builder
	for _, sheet := range book.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return domain.ExtractedText{}, err
		}
		rows, err := book.GetRows(sheet)
		if err != nil {
			return domain.ExtractedText{}, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
			if line == "" {
				continue
			}
			sb.WriteString(line)
			sb.WriteString("\n")
		}
	}
	return domain.NewExtractedText(sb.String(), domain.TextSourceSpreadsheet), nil
}
