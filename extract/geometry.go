package extract

// IPC pages use a fixed layout, so the table and its columns can be located
// by physical position instead of by parsing ruling lines. All coordinates
// are in PDF points with the origin at the top-left of the page.

// PtPerCM converts centimeters to PDF points (1 inch = 72 pt = 2.54 cm).
const PtPerCM = 72.0 / 2.54

// Pt converts a length in centimeters to points.
func Pt(cm float64) float64 {
	return cm * PtPerCM
}

// Rect is an axis-aligned rectangle in page coordinates, top-left origin.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// Contains reports whether the point (x, y) lies inside the rectangle.
// The bottom and right edges are exclusive.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X0 && x < r.X1 && y >= r.Y0 && y < r.Y1
}

// Fixed page regions of the IPC layout.
var (
	// MarkRect is the small footer region that contains "FIG" on table pages.
	MarkRect = Rect{Pt(17.5), Pt(25.8), Pt(18.5), Pt(26.2)}

	// TableRect bounds the parts table body.
	TableRect = Rect{Pt(2.3), Pt(2.5), Pt(19.5), Pt(25.4)}

	// MetaRect is the footer clip holding figure code, label, date and page
	// token. It is preferred over a full-page scan because the body text may
	// contain cross-reference figure codes.
	MetaRect = Rect{Pt(16.3), Pt(25.4), Pt(19.5), Pt(27.4)}
)

// Vertical scan bounds for table rows. Rows above YScanStart belong to the
// column header, not the table body.
var (
	YScanStart   = Pt(3.8)
	YTableBottom = Pt(25.4)
)

// Column identifies one of the five fixed table columns.
type Column string

const (
	ColFigItem      Column = "fig_item"
	ColPartNumber   Column = "part_number"
	ColNomenclature Column = "nomenclature"
	ColEffect       Column = "effect"
	ColUnits        Column = "units"
)

var columnSpans = map[Column][2]float64{
	ColFigItem:      {Pt(2.3), Pt(3.8)},
	ColPartNumber:   {Pt(3.8), Pt(7.9)},
	ColNomenclature: {Pt(7.9), Pt(16.3)},
	ColEffect:       {Pt(16.3), Pt(18.4)},
	ColUnits:        {Pt(18.4), Pt(19.5)},
}

// ColumnSpan returns the horizontal extent [x0, x1) of a table column.
func ColumnSpan(col Column) (x0, x1 float64, ok bool) {
	span, ok := columnSpans[col]
	if !ok {
		return 0, 0, false
	}
	return span[0], span[1], true
}

// headerRect bounds the column-header band at the top of the table region.
func headerRect() Rect {
	return Rect{TableRect.X0, TableRect.Y0, TableRect.X1, Pt(5.2)}
}
