package htmltext

import (
	"bytes"
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
)

var blockElements = map[string]struct{}{
	"br": {}, "div": {}, "p": {}, "li": {}, "tr": {}, "table": {},
	"h1": {}, "h2": {}, "h3": {}, "h4": {}, "h5": {}, "h6": {},
	"section": {}, "article": {}, "header": {}, "footer": {},
}

// Parser extracts visible text from HTML mails and portal exports.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(ctx context.Context, raw []byte) (domain.ExtractedText, error) {
	if err := ctx.Err(); err != nil {
		return domain.ExtractedText{}, err
	}
	root, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrInvalidInput, "parse html", err)
	}

	var sb strings.Builder
	collectText(root, &sb)

	lines := strings.Split(sb.String(), "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return domain.NewExtractedText(strings.Join(kept, "\n"), domain.TextSourceHTML), nil
}

func collectText(n *html.Node, sb *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		sb.WriteString(" ")
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "head", "noscript":
			return
		}
		if _, ok := blockElements[n.Data]; ok {
			sb.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
	if n.Type == html.ElementNode {
		if _, ok := blockElements[n.Data]; ok {
			sb.WriteString("\n")
		}
	}
}
