// Package pdfio adapts a PDF text layer to the extract.PageSource interface.
// The underlying library reports glyph positions in the PDF's bottom-left
// coordinate system; everything here is flipped to the top-left origin the
// extraction geometry expects.
package pdfio

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/xuyicheng33/IPC-QUERY/extract"
)

// a4Height is the fallback page height in points when the MediaBox is absent.
const a4Height = 841.89

// Reader opens one PDF document and serves positioned text per page.
type Reader struct {
	f *os.File
	r *pdf.Reader
}

// Open opens the PDF at path.
func Open(path string) (*Reader, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &Reader{f: f, r: r}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}

// PageCount returns the number of pages.
func (r *Reader) PageCount() int {
	return r.r.NumPage()
}

func (r *Reader) pageHeight(p pdf.Page) float64 {
	mb := p.V.Key("MediaBox")
	if mb.Kind() != pdf.Array || mb.Len() < 4 {
		return a4Height
	}
	return mb.Index(3).Float64() - mb.Index(1).Float64()
}

// pageWords assembles the page's glyph runs into words with top-left boxes.
func (r *Reader) pageWords(pageNum int) ([]extract.Word, error) {
	if pageNum < 1 || pageNum > r.r.NumPage() {
		return nil, fmt.Errorf("page %d out of range", pageNum)
	}
	p := r.r.Page(pageNum)
	if p.V.IsNull() {
		return nil, nil
	}
	height := r.pageHeight(p)

	texts := p.Content().Text
	if len(texts) == 0 {
		return nil, nil
	}

	// Sort by visual position: top to bottom, then left to right. Fragment Y
	// is the baseline in bottom-left coordinates, so larger Y comes first.
	sorted := make([]pdf.Text, len(texts))
	copy(sorted, texts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var words []extract.Word
	var cur *extract.Word
	var curEndX, curY, curSize float64

	flush := func() {
		if cur != nil && strings.TrimSpace(cur.Text) != "" {
			words = append(words, *cur)
		}
		cur = nil
	}

	for _, t := range sorted {
		if t.S == "" {
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = 10
		}
		x0 := t.X
		x1 := t.X + t.W
		y0 := height - t.Y - size
		y1 := height - t.Y

		isSpace := strings.TrimSpace(t.S) == ""
		sameLine := cur != nil && absf(t.Y-curY) <= size*0.3
		adjacent := sameLine && x0-curEndX <= maxGap(size, curSize)

		if isSpace {
			if sameLine {
				flush()
			}
			curEndX = x1
			curY = t.Y
			curSize = size
			continue
		}

		if cur != nil && adjacent {
			cur.Text += t.S
			if x1 > cur.X1 {
				cur.X1 = x1
			}
			if y0 < cur.Y0 {
				cur.Y0 = y0
			}
			if y1 > cur.Y1 {
				cur.Y1 = y1
			}
		} else {
			flush()
			w := extract.Word{X0: x0, Y0: y0, X1: x1, Y1: y1, Text: t.S}
			cur = &w
		}
		curEndX = x1
		curY = t.Y
		curSize = size
	}
	flush()
	return words, nil
}

func maxGap(a, b float64) float64 {
	if b > a {
		a = b
	}
	return a * 0.3
}

func absf(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func clipWords(words []extract.Word, clip extract.Rect) []extract.Word {
	var out []extract.Word
	for _, w := range words {
		cx := (w.X0 + w.X1) / 2
		cy := (w.Y0 + w.Y1) / 2
		if clip.Contains(cx, cy) {
			out = append(out, w)
		}
	}
	return out
}

// Words returns the words whose centers fall inside clip.
func (r *Reader) Words(pageNum int, clip extract.Rect) ([]extract.Word, error) {
	words, err := r.pageWords(pageNum)
	if err != nil {
		return nil, err
	}
	return clipWords(words, clip), nil
}

func linesOf(words []extract.Word) string {
	sort.SliceStable(words, func(i, j int) bool {
		if words[i].Y0 != words[j].Y0 {
			return words[i].Y0 < words[j].Y0
		}
		return words[i].X0 < words[j].X0
	})

	var b strings.Builder
	lastY := -1e9
	for _, w := range words {
		switch {
		case b.Len() == 0:
		case absf(w.Y0-lastY) > 2.0:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(w.Text)
		lastY = w.Y0
	}
	return b.String()
}

// Text returns the newline-joined text of the words inside clip.
func (r *Reader) Text(pageNum int, clip extract.Rect) (string, error) {
	words, err := r.Words(pageNum, clip)
	if err != nil {
		return "", err
	}
	return linesOf(words), nil
}

// PlainText returns the full page text, line by line.
func (r *Reader) PlainText(pageNum int) (string, error) {
	words, err := r.pageWords(pageNum)
	if err != nil {
		return "", err
	}
	return linesOf(words), nil
}
