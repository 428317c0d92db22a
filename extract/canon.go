package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Part-number canonicalization. The PART NUMBER column of scanned IPC pages
// frequently contains OCR-style confusions (O vs 0, stray spaces, unicode
// dashes). Each cell value is matched against candidate tokens harvested from
// the full page text: exact match first, then a loose-normalized match, then
// a fuzzy similarity match with acceptance thresholds.

// Canonicalization methods, ordered from most to least confident.
const (
	MethodEmpty      = "empty"
	MethodExact      = "exact"
	MethodLoose      = "loose"
	MethodFuzzy      = "fuzzy"
	MethodFuzzyLow   = "fuzzy_low"
	MethodUnverified = "unverified"
)

// Fuzzy similarity thresholds. At or above fuzzyAccept the correction is
// trusted; between fuzzyReview and fuzzyAccept it is applied but flagged for
// review; below fuzzyReview the raw value is kept unverified.
const (
	fuzzyAccept = 0.92
	fuzzyReview = 0.90
)

var (
	figureCodeRE = regexp.MustCompile(`\b\d{2}-\d{2}-\d{2}-\d{2}[A-Z]?\b`)
	partRE       = regexp.MustCompile(`^[A-Z0-9][A-Z0-9\-./]*$`)
	digitsOnlyRE = regexp.MustCompile(`^\d+$`)

	candidateTokenRE = regexp.MustCompile(`[A-Z0-9][A-Z0-9./-]{3,}`)
	// Short codes like "M4", "V37", "T434" appear as valid part numbers too.
	shortCodeRE = regexp.MustCompile(`\b[A-Z]{1,3}\d{1,4}[A-Z]?\b`)
)

func stripSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' && r != '\f' && r != '\v' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isDigit(b byte) bool  { return b >= '0' && b <= '9' }
func isLetter(b byte) bool { return b >= 'A' && b <= 'Z' }

// oToZeroBetweenDigits rewrites O as 0 when both neighbors are digits.
func oToZeroBetweenDigits(s string) string {
	b := []byte(s)
	for i := 1; i < len(b)-1; i++ {
		if b[i] == 'O' && isDigit(b[i-1]) && isDigit(b[i+1]) {
			b[i] = '0'
		}
	}
	return string(b)
}

// zeroToOBetweenLetters rewrites 0 as O when both neighbors are letters.
func zeroToOBetweenLetters(s string) string {
	b := []byte(s)
	for i := 1; i < len(b)-1; i++ {
		if b[i] == '0' && isLetter(b[i-1]) && isLetter(b[i+1]) {
			b[i] = 'O'
		}
	}
	return string(b)
}

// NormLoose upper-cases, strips whitespace and unicode dashes, and applies
// both O/0 confusion fixes. Used for free-text candidate tokens.
func NormLoose(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "–", "-")
	s = strings.ReplaceAll(s, "—", "-")
	s = stripSpace(s)
	s = oToZeroBetweenDigits(s)
	s = zeroToOBetweenLetters(s)
	return s
}

// NormLooseCell is the conservative variant for PART NUMBER cell values. It
// fixes O between digits but never maps 0 to O, because some part numbers
// legitimately contain a lone zero between letters (e.g. C0ML, DEM0KIT).
func NormLooseCell(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "–", "-")
	s = strings.ReplaceAll(s, "—", "-")
	s = stripSpace(s)
	s = oToZeroBetweenDigits(s)
	return s
}

func hasDigit(s string) bool {
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			return true
		}
	}
	return false
}

func fullMatch(re *regexp.Regexp, s string) bool {
	loc := re.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// LooksLikePartNumber is the strict heuristic for free-text tokens. Digits-only
// strings and figure codes are rejected to keep the candidate set tight.
func LooksLikePartNumber(s string) bool {
	t := NormLoose(s)
	if t == "" {
		return false
	}
	if digitsOnlyRE.MatchString(t) {
		return false
	}
	if fullMatch(figureCodeRE, t) {
		return false
	}
	if !hasDigit(t) {
		return false
	}
	return partRE.MatchString(t)
}

// LooksLikePartNumberCell is the relaxed heuristic for PART NUMBER column
// values, which are far more reliable than free-text tokens. Digits-only
// values of three or more characters are kept since real part numbers like
// "33700002" or "103" do occur in the column.
func LooksLikePartNumberCell(s string) bool {
	t := NormLooseCell(s)
	if t == "" {
		return false
	}
	if fullMatch(figureCodeRE, t) {
		return false
	}
	if !partRE.MatchString(t) {
		return false
	}
	if digitsOnlyRE.MatchString(t) {
		return len(t) >= 3
	}
	return hasDigit(t)
}

// CandidateTokens harvests plausible part-number tokens from plain page text.
func CandidateTokens(text string) []string {
	upper := strings.ToUpper(text)
	seen := make(map[string]struct{})
	for _, tok := range candidateTokenRE.FindAllString(upper, -1) {
		if LooksLikePartNumber(tok) {
			seen[tok] = struct{}{}
		}
	}
	for _, tok := range shortCodeRE.FindAllString(upper, -1) {
		if LooksLikePartNumber(tok) {
			seen[tok] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for tok := range seen {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// CandidateIndex is the per-page lookup structure for canonicalization.
type CandidateIndex struct {
	candidates []string
	exact      map[string]struct{}
	byLoose    map[string]string
	looseOf    map[string]string
}

// NewCandidateIndex builds an index over the page's plain text.
func NewCandidateIndex(pageText string) *CandidateIndex {
	candidates := CandidateTokens(pageText)
	idx := &CandidateIndex{
		candidates: candidates,
		exact:      make(map[string]struct{}, len(candidates)),
		byLoose:    make(map[string]string, len(candidates)),
		looseOf:    make(map[string]string, len(candidates)),
	}
	for _, c := range candidates {
		idx.exact[c] = struct{}{}
		loose := NormLoose(c)
		if _, ok := idx.byLoose[loose]; !ok {
			idx.byLoose[loose] = c
		}
		idx.looseOf[c] = loose
	}
	return idx
}

// Candidates returns the sorted candidate tokens.
func (idx *CandidateIndex) Candidates() []string {
	return idx.candidates
}

// Canonicalization is the outcome of matching one cell value against the
// page's candidate tokens.
type Canonicalization struct {
	Canonical      string
	Corrected      bool
	Method         string
	BestSimilarity float64
	HasSimilarity  bool
	NeedsReview    bool
	Note           string
}

func ratio(a, b string) float64 {
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

// Canonicalize resolves a raw PART NUMBER cell value against the index.
func (idx *CandidateIndex) Canonicalize(raw string) Canonicalization {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Canonicalization{Method: MethodEmpty}
	}
	rawUpper := strings.ToUpper(raw)
	if _, ok := idx.exact[rawUpper]; ok {
		return Canonicalization{Canonical: rawUpper, Method: MethodExact}
	}

	rawLoose := NormLoose(rawUpper)
	if mapped, ok := idx.byLoose[rawLoose]; ok {
		return Canonicalization{Canonical: mapped, Method: MethodLoose}
	}

	var best string
	bestRatio := 0.0
	for _, c := range idx.candidates {
		r := ratio(idx.looseOf[c], rawLoose)
		if r > bestRatio {
			bestRatio = r
			best = c
		}
	}

	if best != "" && bestRatio >= fuzzyAccept {
		return Canonicalization{
			Canonical:      best,
			Corrected:      true,
			Method:         MethodFuzzy,
			BestSimilarity: bestRatio,
			HasSimilarity:  true,
			Note:           fmt.Sprintf("%s -> %s (sim %.3f)", rawUpper, best, bestRatio),
		}
	}
	if best != "" && bestRatio >= fuzzyReview {
		return Canonicalization{
			Canonical:      best,
			Corrected:      true,
			Method:         MethodFuzzyLow,
			BestSimilarity: bestRatio,
			HasSimilarity:  true,
			NeedsReview:    true,
			Note:           fmt.Sprintf("%s -> %s (sim %.3f, low confidence)", rawUpper, best, bestRatio),
		}
	}
	return Canonicalization{Canonical: rawUpper, Method: MethodUnverified, NeedsReview: true}
}
