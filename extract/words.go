package extract

import (
	"regexp"
	"sort"
	"strings"
)

// Word is a positioned text fragment from the PDF text layer.
type Word struct {
	X0, Y0, X1, Y1 float64
	Text           string
}

func (w Word) centerX() float64 { return (w.X0 + w.X1) / 2 }
func (w Word) centerY() float64 { return (w.Y0 + w.Y1) / 2 }

// lineGroup is a cluster of words sharing (approximately) one baseline.
type lineGroup struct {
	y     float64
	words []Word
}

// defaultYTol merges words whose top edges differ by at most this many points
// into the same visual line.
const defaultYTol = 2.0

// groupByY clusters words into visual lines. Words are sorted by (y, x) and a
// new line starts whenever the vertical gap to the previous group exceeds yTol.
func groupByY(words []Word, yTol float64) []lineGroup {
	sorted := make([]Word, len(words))
	copy(sorted, words)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Y0 != sorted[j].Y0 {
			return sorted[i].Y0 < sorted[j].Y0
		}
		return sorted[i].X0 < sorted[j].X0
	})

	var groups []lineGroup
	for _, w := range sorted {
		if len(groups) == 0 || abs(w.Y0-groups[len(groups)-1].y) > yTol {
			groups = append(groups, lineGroup{y: w.Y0, words: []Word{w}})
		} else {
			last := &groups[len(groups)-1]
			last.words = append(last.words, w)
		}
	}
	return groups
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

var multiSpaceRE = regexp.MustCompile(`\s+`)

// joinLine concatenates a line's words left to right with the given separator.
func joinLine(words []Word, sep string) string {
	sorted := make([]Word, len(words))
	copy(sorted, words)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].X0 < sorted[j].X0 })

	parts := make([]string, 0, len(sorted))
	for _, w := range sorted {
		if t := strings.TrimSpace(w.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.TrimSpace(multiSpaceRE.ReplaceAllString(strings.Join(parts, sep), " "))
}

// ColumnText gathers the text of one column between y0 (inclusive) and y1
// (exclusive), joined into newline-separated visual lines. Words are assigned
// by their center point so fragments straddling a column border land in the
// column that holds most of them.
func ColumnText(tableWords []Word, col Column, y0, y1 float64) string {
	x0, x1, ok := ColumnSpan(col)
	if !ok {
		return ""
	}

	var picked []Word
	for _, w := range tableWords {
		cx, cy := w.centerX(), w.centerY()
		if cx < x0 || cx > x1 {
			continue
		}
		if cy < y0 || cy >= y1 {
			continue
		}
		picked = append(picked, w)
	}
	if len(picked) == 0 {
		return ""
	}

	var lines []string
	for _, grp := range groupByY(picked, defaultYTol) {
		if s := joinLine(grp.words, " "); s != "" {
			lines = append(lines, s)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
