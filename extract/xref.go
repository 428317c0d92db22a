package extract

import (
	"regexp"
	"strings"
)

var (
	nhaXRefRE     = regexp.MustCompile(`(?i)FOR\s+NHA\s+SEE:\s*([0-9]{2}-[0-9]{2}-[0-9]{2}-[0-9]{2}[A-Z]?)`)
	detailsXRefRE = regexp.MustCompile(`(?i)FOR\s+DETAILS\s+SEE:\s*([0-9]{2}-[0-9]{2}-[0-9]{2}-[0-9]{2}[A-Z]?)`)
)

// XRefRef is a cross reference found in a nomenclature cell.
type XRefRef struct {
	Kind   string // NHA or DETAILS
	Target string // figure code
}

// ExtractXRefs finds "FOR NHA SEE:" and "FOR DETAILS SEE:" references in the
// given nomenclature text.
func ExtractXRefs(text string) []XRefRef {
	if text == "" {
		return nil
	}
	var out []XRefRef
	for _, m := range nhaXRefRE.FindAllStringSubmatch(text, -1) {
		out = append(out, XRefRef{Kind: "NHA", Target: strings.ToUpper(m[1])})
	}
	for _, m := range detailsXRefRE.FindAllStringSubmatch(text, -1) {
		out = append(out, XRefRef{Kind: "DETAILS", Target: strings.ToUpper(m[1])})
	}
	return out
}
