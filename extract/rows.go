package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// PageSource provides positioned text for one PDF document. Page numbers are
// 1-based. Implementations must deliver coordinates with a top-left origin.
type PageSource interface {
	PageCount() int
	// Words returns the text-layer words whose boxes intersect clip.
	Words(pageNum int, clip Rect) ([]Word, error)
	// Text returns plain text clipped to the given region.
	Text(pageNum int, clip Rect) (string, error)
	// PlainText returns the full plain text of the page.
	PlainText(pageNum int) (string, error)
}

// Anchor marks a PART NUMBER cell that starts a table row.
type Anchor struct {
	Y  float64
	PN string
}

// anchorDedupYTol merges repeated part numbers on the same visual row while
// still allowing consecutive rows to legitimately repeat a part number
// (standard hardware often does, with different FIG ITEM numbers).
const anchorDedupYTol = 3.0

// PartNumberAnchors finds the row anchors in the PART NUMBER column between
// the scan start and the table bottom.
func PartNumberAnchors(tableWords []Word) []Anchor {
	x0, x1, _ := ColumnSpan(ColPartNumber)

	var picked []Word
	for _, w := range tableWords {
		cx, cy := w.centerX(), w.centerY()
		if cx < x0 || cx > x1 {
			continue
		}
		if cy < YScanStart || cy > YTableBottom {
			continue
		}
		picked = append(picked, w)
	}

	var anchors []Anchor
	for _, grp := range groupByY(picked, defaultYTol) {
		pn := stripSpace(joinLine(grp.words, ""))
		if !LooksLikePartNumberCell(pn) {
			continue
		}
		if n := len(anchors); n > 0 && pn == anchors[n-1].PN && abs(grp.y-anchors[n-1].Y) <= anchorDedupYTol {
			continue
		}
		anchors = append(anchors, Anchor{Y: grp.y, PN: pn})
	}
	return anchors
}

// Record is one table row stitched across page boundaries. A row that starts
// at the last anchor of a page stays open and absorbs the anchor-free column
// text of continuation pages until the next anchor or a non-table page.
type Record struct {
	PartNumberCell string
	StartPage      int
	EndPage        int
	FigItemText    string
	Nomenclature   string
	Effectivity    string
	UnitsPerAssy   string
	MetaRaw        string
}

func appendMultiline(base, addition string) string {
	addition = strings.TrimSpace(addition)
	if addition == "" {
		return base
	}
	base = strings.TrimRight(base, " \t\r\n")
	if base == "" {
		return addition
	}
	return base + "\n" + addition
}

// IsTablePage reports whether the page carries the fixed-layout parts table,
// checked via the footer mark region with a header-keyword fallback.
func IsTablePage(src PageSource, pageNum int) (bool, error) {
	mark, err := src.Text(pageNum, MarkRect)
	if err != nil {
		return false, err
	}
	if strings.Contains(strings.ToUpper(mark), "FIG") {
		return true, nil
	}
	header, err := src.Text(pageNum, headerRect())
	if err != nil {
		return false, err
	}
	h := strings.ToUpper(header)
	if strings.Contains(h, "PART NUMBER") || strings.Contains(h, "NOMENCLATURE") {
		return true, nil
	}
	return strings.Contains(h, "FIG") && strings.Contains(h, "ITEM"), nil
}

// Records walks the document page by page and yields the stitched table rows
// in reading order.
func Records(src PageSource) ([]Record, error) {
	var out []Record
	var current *Record

	flush := func() {
		if current != nil {
			out = append(out, *current)
			current = nil
		}
	}

	for pageNum := 1; pageNum <= src.PageCount(); pageNum++ {
		isTable, err := IsTablePage(src, pageNum)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", pageNum, err)
		}
		if !isTable {
			flush()
			continue
		}

		metaRaw, err := src.Text(pageNum, MetaRect)
		if err != nil {
			return nil, fmt.Errorf("page %d meta clip: %w", pageNum, err)
		}
		metaRaw = strings.TrimSpace(metaRaw)

		tableWords, err := src.Words(pageNum, TableRect)
		if err != nil {
			return nil, fmt.Errorf("page %d table words: %w", pageNum, err)
		}
		anchors := PartNumberAnchors(tableWords)

		if len(anchors) == 0 {
			// Continuation page: the open row absorbs the whole table body.
			if current != nil {
				current.Nomenclature = appendMultiline(current.Nomenclature,
					ColumnText(tableWords, ColNomenclature, YScanStart, YTableBottom))
				current.Effectivity = appendMultiline(current.Effectivity,
					ColumnText(tableWords, ColEffect, YScanStart, YTableBottom))
				current.UnitsPerAssy = appendMultiline(current.UnitsPerAssy,
					ColumnText(tableWords, ColUnits, YScanStart, YTableBottom))
				current.EndPage = pageNum
			}
			continue
		}

		// Close the open row at the first anchor of this page.
		if current != nil {
			yFirst := anchors[0].Y
			current.Nomenclature = appendMultiline(current.Nomenclature,
				ColumnText(tableWords, ColNomenclature, YScanStart, yFirst))
			current.Effectivity = appendMultiline(current.Effectivity,
				ColumnText(tableWords, ColEffect, YScanStart, yFirst))
			current.UnitsPerAssy = appendMultiline(current.UnitsPerAssy,
				ColumnText(tableWords, ColUnits, YScanStart, yFirst))
			current.EndPage = pageNum
			flush()
		}

		for i, a := range anchors {
			yStart := a.Y
			yEnd := YTableBottom
			if i+1 < len(anchors) {
				yEnd = anchors[i+1].Y
			}

			figItem := ColumnText(tableWords, ColFigItem, yStart, yEnd)
			if idx := strings.IndexByte(figItem, '\n'); idx >= 0 {
				figItem = figItem[:idx]
			}
			figItem = strings.TrimSpace(figItem)

			rec := Record{
				PartNumberCell: a.PN,
				StartPage:      pageNum,
				EndPage:        pageNum,
				FigItemText:    figItem,
				Nomenclature:   ColumnText(tableWords, ColNomenclature, yStart, yEnd),
				Effectivity:    ColumnText(tableWords, ColEffect, yStart, yEnd),
				UnitsPerAssy:   ColumnText(tableWords, ColUnits, yStart, yEnd),
				MetaRaw:        metaRaw,
			}

			if i+1 < len(anchors) {
				out = append(out, rec)
			} else {
				// The last row of the page may continue onto the next one.
				recCopy := rec
				current = &recCopy
			}
		}
	}

	flush()
	return out, nil
}

var (
	figItemNoRE     = regexp.MustCompile(`(\d+[A-Z]?)`)
	figItemFullNoRE = regexp.MustCompile(`^(\d+[A-Z]?)$`)
)

// FigItem is the parsed FIG ITEM cell of a row.
type FigItem struct {
	Raw            string
	No             string
	NotIllustrated bool
}

// ParseFigItem interprets the FIG ITEM cell. A leading dash marks the part as
// not illustrated; the item number, when present, is still extracted.
func ParseFigItem(raw string) FigItem {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "-") {
		fi := FigItem{Raw: raw, NotIllustrated: true}
		if m := figItemNoRE.FindStringSubmatch(raw); m != nil {
			fi.No = m[1]
			fi.Raw = "-"
		}
		return fi
	}
	fi := FigItem{Raw: raw}
	if m := figItemFullNoRE.FindStringSubmatch(raw); m != nil {
		fi.No = m[1]
		fi.Raw = ""
	}
	return fi
}
