// Package extractor routes stored documents to a format parser by MIME type.
package extractor

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/core/ports"
)

// Parser turns raw file bytes into normalized text.
type Parser interface {
	Parse(ctx context.Context, raw []byte) (domain.ExtractedText, error)
}

type Router struct {
	storage  ports.ObjectStorage
	byMIME   map[string]Parser
	byExt    map[string]string
	maxBytes int64
}

// Route binds MIME types to a parser; Extensions are used when the upload
// carried no usable MIME type.
type Route struct {
	MIMETypes  []string
	Extensions []string
	Parser     Parser
}

func NewRouter(storage ports.ObjectStorage, maxBytes int64, routes ...Route) *Router {
	r := &Router{
		storage:  storage,
		byMIME:   make(map[string]Parser),
		byExt:    make(map[string]string),
		maxBytes: maxBytes,
	}
	for _, route := range routes {
		for _, mt := range route.MIMETypes {
			r.byMIME[mt] = route.Parser
		}
		for _, ext := range route.Extensions {
			if len(route.MIMETypes) > 0 {
				r.byExt[strings.ToLower(ext)] = route.MIMETypes[0]
			}
		}
	}
	return r
}

func (r *Router) Extract(ctx context.Context, doc *domain.Document) (domain.ExtractedText, error) {
	parser, err := r.parserFor(doc)
	if err != nil {
		return domain.ExtractedText{}, err
	}

	reader, err := r.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	var src io.Reader = reader
	if r.maxBytes > 0 {
		src = io.LimitReader(reader, r.maxBytes+1)
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("read source document: %w", err)
	}
	if r.maxBytes > 0 && int64(len(raw)) > r.maxBytes {
		return domain.ExtractedText{}, domain.WrapError(domain.ErrInvalidInput, "read source document",
			fmt.Errorf("%s exceeds %d bytes", doc.Filename, r.maxBytes))
	}

	return parser.Parse(ctx, raw)
}

func (r *Router) parserFor(doc *domain.Document) (Parser, error) {
	if mt, _, err := mime.ParseMediaType(doc.MimeType); err == nil {
		if parser, ok := r.byMIME[strings.ToLower(mt)]; ok {
			return parser, nil
		}
	}
	if mt, ok := r.byExt[strings.ToLower(filepath.Ext(doc.Filename))]; ok {
		return r.byMIME[mt], nil
	}
	return nil, domain.WrapError(domain.ErrInvalidInput, "select text extractor",
		fmt.Errorf("unsupported document format: mime=%q filename=%q", doc.MimeType, doc.Filename))
}
