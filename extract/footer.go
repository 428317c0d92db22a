package extract

import (
	"regexp"
	"strings"
)

// Footer meta parsing. The MetaRect clip carries the figure identity for a
// table page: the base code prefix on its first line, then a FIG./FIGURE line,
// a date and a page token within the next few lines.

var (
	dateRE       = regexp.MustCompile(`(?i)\b(JAN|FEB|MAR|APR|MAY|JUN|JUL|AUG|SEP|OCT|NOV|DEC)\s+\d{1,2}/\d{2}\b`)
	rfTextRE     = regexp.MustCompile(`(?i)\bRF\s+\d{2}-\d{2}-\d{2}\b`)
	pageTokenRE  = regexp.MustCompile(`(?i)\bPAGE\s+[0-9A-Z]+\b`)
	figLineRE    = regexp.MustCompile(`(?i)^FIG\.?\s+(.+)$`)
	figureLineRE = regexp.MustCompile(`(?i)^FIGURE\s+(.+)$`)
	figSuffixRE  = regexp.MustCompile(`^(\d{1,2})([A-Z]?)$`)
)

// PageMeta is the figure identity parsed from a table page's footer.
type PageMeta struct {
	FigureCode  string
	FigureLabel string
	DateText    string
	PageToken   string
	RFText      string
}

// CanonFigureSuffix normalizes the figure number as printed in the footer:
// "9" -> "09", "1B" -> "01B", "02A" -> "02A".
func CanonFigureSuffix(raw string) string {
	s := stripSpace(strings.ToUpper(strings.TrimSpace(raw)))
	if s == "" {
		return ""
	}
	m := figSuffixRE.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	digits, suffix := m[1], m[2]
	if len(digits) == 1 {
		digits = "0" + digits
	}
	return digits + suffix
}

func nonEmptyLines(text string) []string {
	var lines []string
	for _, ln := range strings.Split(text, "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	return lines
}

// ParseMetaClip parses the footer meta clip of a table page. The first line is
// the figure code prefix; the figure code itself is synthesized from it and
// the canonical suffix of the FIG./FIGURE line.
func ParseMetaClip(metaText string) PageMeta {
	lines := nonEmptyLines(metaText)
	if len(lines) == 0 {
		return PageMeta{}
	}

	prefix := strings.ToUpper(lines[0])
	var meta PageMeta

	scan := lines[1:]
	if len(scan) > 11 {
		scan = scan[:11]
	}
	for _, ln := range scan {
		if meta.PageToken == "" {
			if m := pageTokenRE.FindString(ln); m != "" {
				meta.PageToken = strings.ToUpper(m)
			}
		}
		if meta.DateText == "" {
			if m := dateRE.FindString(ln); m != "" {
				meta.DateText = strings.ToUpper(m)
			}
		}
		if meta.FigureLabel == "" {
			if m := figLineRE.FindStringSubmatch(ln); m != nil {
				meta.FigureLabel = "FIG. " + strings.TrimSpace(m[1])
				meta.FigureCode = prefix + "-" + CanonFigureSuffix(m[1])
				continue
			}
			if m := figureLineRE.FindStringSubmatch(ln); m != nil {
				meta.FigureLabel = "FIGURE " + strings.TrimSpace(m[1])
				meta.FigureCode = prefix + "-" + CanonFigureSuffix(m[1])
				continue
			}
		}
	}

	if m := rfTextRE.FindString(metaText); m != "" {
		meta.RFText = strings.ToUpper(m)
	}
	return meta
}
