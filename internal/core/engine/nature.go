package engine

import "strings"

// natureTerms is checked in order; the first term found decides.
var natureTerms = []struct {
	term   string
	nature string
}{
	{"loyer", "LOYER"},
	{"commission", "FRAIS_GESTION"},
	{"assurance", "ASSURANCE"},
	{"taxe", "TAXE_FONCIERE"},
	{"entretien", "ENTRETIEN"},
	{"banque", "FRAIS_BANCAIRES"},
}

// DetectNature guesses a transaction nature from domain terms in raw text.
func DetectNature(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, nt := range natureTerms {
		if strings.Contains(lowered, nt.term) {
			return nt.nature, true
		}
	}
	return "", false
}

// CategoryHint is the string a category label must contain for nature.
func (c DefaultContexts) CategoryHint(nature, declared string) string {
	if declared != "" {
		return declared
	}
	if mapped, ok := c.NatureCategoryMap[strings.ToUpper(nature)]; ok {
		return mapped
	}
	return nature
}
