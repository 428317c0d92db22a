package extract

import (
	"testing"
)

func TestNormLoose(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"uppercase and strip spaces", "ab 1-23 x", "AB1-23X"},
		{"unicode dashes", "AB–12—34", "AB-12-34"},
		{"o between digits becomes zero", "1O1-X", "101-X"},
		{"zero between letters becomes o", "C0M", "COM"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormLoose(tt.input); got != tt.want {
				t.Errorf("NormLoose(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormLooseCell(t *testing.T) {
	// The cell variant must not map 0 -> O between letters.
	if got := NormLooseCell("C0ML"); got != "C0ML" {
		t.Errorf("NormLooseCell(C0ML) = %q, want C0ML", got)
	}
	if got := NormLooseCell("1O1"); got != "101" {
		t.Errorf("NormLooseCell(1O1) = %q, want 101", got)
	}
}

func TestLooksLikePartNumber(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"AB1-CDEFGH-JK", true},
		{"M4", true},
		{"12345", false},          // digits only rejected for free text
		{"25-21-44-01", false},    // figure code
		{"ABCDEF", false},         // no digit
		{"", false},
		{"AB?1", false},           // bad charset
	}

	for _, tt := range tests {
		if got := LooksLikePartNumber(tt.input); got != tt.want {
			t.Errorf("LooksLikePartNumber(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLooksLikePartNumberCell(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"33700002", true}, // digits-only allowed in the column if >= 3 chars
		{"103", true},
		{"12", false},
		{"25-21-44-01", false},
		{"C0ML", true},
		{"", false},
	}

	for _, tt := range tests {
		if got := LooksLikePartNumberCell(tt.input); got != tt.want {
			t.Errorf("LooksLikePartNumberCell(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestCandidateTokens(t *testing.T) {
	text := "install bracket AB1-CDEFGH-JK near item M4\nsee 25-21-44-01 for details\ncount 12345"
	got := CandidateTokens(text)

	want := map[string]bool{"AB1-CDEFGH-JK": true, "M4": true}
	for _, tok := range got {
		if !want[tok] {
			t.Errorf("unexpected candidate token %q", tok)
		}
		delete(want, tok)
	}
	for tok := range want {
		t.Errorf("missing candidate token %q", tok)
	}
}

func TestCanonicalizeExactAndLoose(t *testing.T) {
	idx := NewCandidateIndex("mount AB1-CDEFGH-JK here")

	got := idx.Canonicalize("ab1-cdefgh-jk")
	if got.Method != MethodExact || got.Canonical != "AB1-CDEFGH-JK" || got.Corrected {
		t.Errorf("exact: got %+v", got)
	}

	got = idx.Canonicalize("AB1 - CDEFGH - JK")
	if got.Method != MethodLoose || got.Canonical != "AB1-CDEFGH-JK" {
		t.Errorf("loose: got %+v", got)
	}
	if got.NeedsReview {
		t.Error("loose match should not need review")
	}
}

func TestCanonicalizeFuzzyThresholds(t *testing.T) {
	// One substitution in a 13-char token: ratio = 24/26 ~ 0.923 -> fuzzy.
	idx := NewCandidateIndex("AB1-CDEFGH-JK")
	got := idx.Canonicalize("AB1-CDEFGH-JX")
	if got.Method != MethodFuzzy {
		t.Fatalf("expected fuzzy, got %+v", got)
	}
	if got.Canonical != "AB1-CDEFGH-JK" || !got.Corrected || got.NeedsReview {
		t.Errorf("fuzzy: got %+v", got)
	}
	if !got.HasSimilarity || got.BestSimilarity < 0.92 {
		t.Errorf("fuzzy similarity = %v, want >= 0.92", got.BestSimilarity)
	}

	// One substitution in an 11-char token: ratio = 20/22 ~ 0.909 -> fuzzy_low.
	idx = NewCandidateIndex("AB1-CDEF-JK")
	got = idx.Canonicalize("AB1-CDEF-JX")
	if got.Method != MethodFuzzyLow {
		t.Fatalf("expected fuzzy_low, got %+v", got)
	}
	if !got.Corrected || !got.NeedsReview {
		t.Errorf("fuzzy_low: got %+v", got)
	}
	if got.BestSimilarity >= 0.92 || got.BestSimilarity < 0.90 {
		t.Errorf("fuzzy_low similarity = %v, want in [0.90, 0.92)", got.BestSimilarity)
	}
}

func TestCanonicalizeUnverified(t *testing.T) {
	idx := NewCandidateIndex("AB1-CDEFGH-JK")

	got := idx.Canonicalize("review.me-9")
	if got.Method != MethodUnverified {
		t.Fatalf("expected unverified, got %+v", got)
	}
	if got.Canonical != "REVIEW.ME-9" {
		t.Errorf("unverified keeps raw uppercased, got %q", got.Canonical)
	}
	if !got.NeedsReview || got.Corrected {
		t.Errorf("unverified flags: got %+v", got)
	}
}

func TestCanonicalizeEmpty(t *testing.T) {
	idx := NewCandidateIndex("AB1-CDEFGH-JK")
	got := idx.Canonicalize("   ")
	if got.Method != MethodEmpty || got.Canonical != "" || got.NeedsReview {
		t.Errorf("empty: got %+v", got)
	}
}
