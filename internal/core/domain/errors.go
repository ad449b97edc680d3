package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrDocumentNotFound     = fmt.Errorf("document %w", ErrNotFound)
	ErrDocumentTypeNotFound = fmt.Errorf("document type %w", ErrNotFound)
	ErrInvalidInput         = errors.New("invalid input")
	ErrTemporary            = errors.New("temporary failure")

	ErrConfigParse          = errors.New("config parse error")
	ErrRegex                = errors.New("regex error")
	ErrDomainResolutionMiss = errors.New("domain resolution miss")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ConfigParseError reports a malformed JSON configuration block of a document type.
// The block is treated as absent; the rest of the type stays usable.
type ConfigParseError struct {
	TypeCode string
	Block    string
	Err      error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("document type %s: parse %s: %v", e.TypeCode, e.Block, e.Err)
}

func (e *ConfigParseError) Unwrap() []error { return []error{ErrConfigParse, e.Err} }

// RegexError reports a pattern that failed to compile at evaluation time.
type RegexError struct {
	Source  string
	Pattern string
	Err     error
}

func (e *RegexError) Error() string {
	return fmt.Sprintf("%s: invalid pattern %q: %v", e.Source, e.Pattern, e.Err)
}

func (e *RegexError) Unwrap() []error { return []error{ErrRegex, e.Err} }
