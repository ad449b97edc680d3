package extractor

import (
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/extractor/htmltext"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/extractor/spreadsheet"
)

const MIMETypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// StandardRoutes covers every format with embedded text. Scanned documents
// need OCR upstream and are rejected as unsupported.
func StandardRoutes(pdfMaxPages int) []Route {
	return []Route{
		{
			MIMETypes:  []string{"text/plain", "text/csv", "text/markdown"},
			Extensions: []string{".txt", ".csv", ".md"},
			Parser:     plaintext.NewParser(),
		},
		{
			MIMETypes:  []string{"application/pdf"},
			Extensions: []string{".pdf"},
			Parser:     pdf.NewParser(pdfMaxPages),
		},
		{
			MIMETypes:  []string{MIMETypeXLSX},
			Extensions: []string{".xlsx"},
			Parser:     spreadsheet.NewParser(),
		},
		{
			MIMETypes:  []string{"text/html", "application/xhtml+xml"},
			Extensions: []string{".html", ".htm"},
			Parser:     htmltext.NewParser(),
		},
	}
}
