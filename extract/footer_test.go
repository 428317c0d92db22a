package extract

import (
	"testing"
)

func TestCanonFigureSuffix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"9", "09"},
		{"1B", "01B"},
		{"01B", "01B"},
		{"02A", "02A"},
		{"10", "10"},
		{" 9 ", "09"},
		{"", ""},
		{"9/XYZ", "9/XYZ"}, // not a plain figure number, kept as-is
	}

	for _, tt := range tests {
		if got := CanonFigureSuffix(tt.input); got != tt.want {
			t.Errorf("CanonFigureSuffix(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParseMetaClip(t *testing.T) {
	meta := "25-21-44\nFIG. 9\nJAN 15/24\nPAGE 1\nRF 25-21-44"
	got := ParseMetaClip(meta)

	if got.FigureCode != "25-21-44-09" {
		t.Errorf("FigureCode = %q, want 25-21-44-09", got.FigureCode)
	}
	if got.FigureLabel != "FIG. 9" {
		t.Errorf("FigureLabel = %q, want FIG. 9", got.FigureLabel)
	}
	if got.DateText != "JAN 15/24" {
		t.Errorf("DateText = %q, want JAN 15/24", got.DateText)
	}
	if got.PageToken != "PAGE 1" {
		t.Errorf("PageToken = %q, want PAGE 1", got.PageToken)
	}
	if got.RFText != "RF 25-21-44" {
		t.Errorf("RFText = %q, want RF 25-21-44", got.RFText)
	}
}

func TestParseMetaClipFigureSpelling(t *testing.T) {
	meta := "25-21-44\nFIGURE 1B\nFEB 2/23"
	got := ParseMetaClip(meta)

	if got.FigureCode != "25-21-44-01B" {
		t.Errorf("FigureCode = %q, want 25-21-44-01B", got.FigureCode)
	}
	if got.FigureLabel != "FIGURE 1B" {
		t.Errorf("FigureLabel = %q, want FIGURE 1B", got.FigureLabel)
	}
	if got.DateText != "FEB 2/23" {
		t.Errorf("DateText = %q, want FEB 2/23", got.DateText)
	}
}

func TestParseMetaClipEmpty(t *testing.T) {
	got := ParseMetaClip("  \n ")
	if got != (PageMeta{}) {
		t.Errorf("empty clip should parse to zero meta, got %+v", got)
	}
}

func TestExtractXRefs(t *testing.T) {
	text := "BRACKET ASSY\nFOR NHA SEE: 25-21-44-01\nFOR DETAILS SEE: 25-21-44-02A"
	got := ExtractXRefs(text)

	if len(got) != 2 {
		t.Fatalf("expected 2 xrefs, got %d", len(got))
	}
	if got[0].Kind != "NHA" || got[0].Target != "25-21-44-01" {
		t.Errorf("xref[0] = %+v", got[0])
	}
	if got[1].Kind != "DETAILS" || got[1].Target != "25-21-44-02A" {
		t.Errorf("xref[1] = %+v", got[1])
	}

	if got := ExtractXRefs("no references here"); len(got) != 0 {
		t.Errorf("expected no xrefs, got %v", got)
	}
}
