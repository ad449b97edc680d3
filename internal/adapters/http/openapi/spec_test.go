package openapi

import "testing"

func TestSpecLoadsAndValidates(t *testing.T) {
	doc, err := Spec()
	if err != nil {
		t.Fatalf("Spec() error = %v", err)
	}
	for _, path := range []string{
		"/v1/documents",
		"/v1/documents/{document_id}",
		"/v1/documents/{document_id}/suggestion",
		"/v1/classify",
		"/v1/extract",
		"/v1/test-runs",
	} {
		if doc.Paths.Value(path) == nil {
			t.Fatalf("expected path %s in spec", path)
		}
	}
}
