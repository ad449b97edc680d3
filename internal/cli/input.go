package cli

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kirillkom/property-doc-engine/internal/core/domain"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/extractor"
	"github.com/kirillkom/property-doc-engine/internal/infrastructure/storage/localfs"
)

// textInput is either inline --text or a single file argument.
type textInput struct {
	text string
}

func (in *textInput) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.text, "text", "", "inline document text (instead of a file)")
}

func (in *textInput) resolve(ctx context.Context, opts *globalOptions, args []string) (domain.ExtractedText, error) {
	switch {
	case in.text != "" && len(args) > 0:
		return domain.ExtractedText{}, errors.New("use either --text or a file argument, not both")
	case in.text != "":
		return domain.NewExtractedText(in.text, domain.TextSourceManual), nil
	case len(args) == 1:
		return extractFile(ctx, opts, args[0])
	default:
		return domain.ExtractedText{}, errors.New("a file argument or --text is required")
	}
}

func extractFile(ctx context.Context, opts *globalOptions, path string) (domain.ExtractedText, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.ExtractedText{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	storage, err := localfs.New(filepath.Dir(abs))
	if err != nil {
		return domain.ExtractedText{}, err
	}

	name := filepath.Base(abs)
	doc := &domain.Document{
		ID:          "local",
		Filename:    name,
		MimeType:    mime.TypeByExtension(filepath.Ext(name)),
		StoragePath: name,
	}
	return newTextRouter(storage, opts).Extract(ctx, doc)
}

func newTextRouter(storage *localfs.Storage, opts *globalOptions) *extractor.Router {
	return extractor.NewRouter(storage, opts.maxBytes, extractor.StandardRoutes(opts.pdfPages)...)
}
