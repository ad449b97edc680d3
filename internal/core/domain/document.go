package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"
)

type DocumentStatus string

const (
	StatusUploaded    DocumentStatus = "uploaded"
	StatusProcessing  DocumentStatus = "processing"
	StatusClassified  DocumentStatus = "classified"
	StatusNeedsReview DocumentStatus = "needs_review"
	StatusFailed      DocumentStatus = "failed"
)

type TextSource string

const (
	TextSourcePlain       TextSource = "plain"
	TextSourcePDFParse    TextSource = "pdf-parse"
	TextSourceSpreadsheet TextSource = "spreadsheet"
	TextSourceHTML        TextSource = "html"
	TextSourceTesseract   TextSource = "tesseract"
	TextSourcePDFOCR      TextSource = "pdf-ocr"
	TextSourceManual      TextSource = "manual"
)

type Document struct {
	ID             string         `json:"id"`
	Filename       string         `json:"filename"`
	MimeType       string         `json:"mime_type"`
	StoragePath    string         `json:"storage_path"`
	DocumentTypeID string         `json:"document_type_id,omitempty"`
	Confidence     float64        `json:"confidence,omitempty"`
	Text           string         `json:"-"`
	TextSource     TextSource     `json:"text_source,omitempty"`
	TextSHA256     string         `json:"text_sha256,omitempty"`
	TextLength     int            `json:"text_length,omitempty"`
	Status         DocumentStatus `json:"status"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ExtractedText is what the text extraction collaborator hands to the engine.
// Text is treated as already normalized.
type ExtractedText struct {
	Text       string     `json:"text"`
	Source     TextSource `json:"source"`
	SHA256     string     `json:"sha256"`
	Length     int        `json:"length"`
	PagesOCRed int        `json:"pages_ocred,omitempty"`
}

// Assignment is the persisted outcome of classifying a document.
type Assignment struct {
	DocumentTypeID string  `json:"document_type_id,omitempty"`
	Confidence     float64 `json:"confidence"`
	AutoAssigned   bool    `json:"auto_assigned"`
}

// NewExtractedText normalizes line endings, trims surrounding whitespace and
// fingerprints the result.
func NewExtractedText(text string, source TextSource) ExtractedText {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	text = strings.TrimSpace(text)

	sum := sha256.Sum256([]byte(text))
	return ExtractedText{
		Text:   text,
		Source: source,
		SHA256: hex.EncodeToString(sum[:]),
		Length: utf8.RuneCountInString(text),
	}
}
