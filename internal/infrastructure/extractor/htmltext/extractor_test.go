package htmltext

import (
	"context"
	"testing"
)

func TestParseKeepsBlocksAsLines(t *testing.T) {
	page := `<html><head><title>ignored</title><style>p{}</style></head>
<body><h1>Avis d'&eacute;ch&eacute;ance</h1>
<p>Bien : <b>Résidence Les Tilleuls</b></p>
<script>var x = 1;</script>
<table><tr><td>Loyer :</td><td>558,26</td></tr></table></body></html>`

	got, err := NewParser().Parse(context.Background(), []byte(page))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	want := "Avis d'échéance\nBien : Résidence Les Tilleuls\nLoyer : 558,26"
	if got.Text != want {
		t.Fatalf("Parse() text = %q, want %q", got.Text, want)
	}
}
