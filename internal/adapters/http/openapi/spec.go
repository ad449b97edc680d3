// Package openapi embeds the public HTTP contract.
package openapi

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var specYAML []byte

var loadOnce = sync.OnceValues(func() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("load openapi spec: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi spec: %w", err)
	}
	return doc, nil
})

// Spec returns the parsed document. It is parsed once per process and must
// be treated as read-only.
func Spec() (*openapi3.T, error) {
	return loadOnce()
}

// Raw returns the embedded YAML document.
func Raw() []byte {
	return specYAML
}
