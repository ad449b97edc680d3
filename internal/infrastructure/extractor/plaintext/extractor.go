package plaintext

import (
	"context"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

// Parser reads text files. Input that is not valid UTF-8 is decoded as
// Windows-1252, the usual encoding of exported French accounting files.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(ctx context.Context, raw []byte) (domain.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExtractedText{}, err
	}

	if utf8.Valid(raw) {
		return domain.NewExtractedText(string(raw), domain.TextSourcePlain), nil
	}

	decoded, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrInvalidInput, "decode text document", fmt.Errorf("unsupported encoding: %w", err))
	}
	return domain.NewExtractedText(string(decoded), domain.TextSourcePlain), nil
}
