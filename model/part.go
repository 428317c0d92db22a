package model

// Row kinds
const (
	RowKindPart = "part"
	RowKindNote = "note"
)

// Canonicalization methods
const (
	PNMethodEmpty      = "empty"
	PNMethodExact      = "exact"
	PNMethodLoose      = "loose"
	PNMethodFuzzy      = "fuzzy"
	PNMethodFuzzyLow   = "fuzzy_low"
	PNMethodUnverified = "unverified"
)

// XRef kinds
const (
	XRefKindNHA     = "NHA"
	XRefKindDetails = "DETAILS"
)

// Part is one extracted table row (a part or an attached note).
type Part struct {
	ID         int64 `json:"id"`
	DocumentID int64 `json:"document_id"`
	PageNum    int   `json:"page_num"`
	PageEnd    int   `json:"page_end"`

	Extractor   string `json:"extractor"`
	MetaDataRaw string `json:"meta_data_raw,omitempty"`
	FigureCode  string `json:"figure_code,omitempty"`

	FigItemRaw      string `json:"fig_item_raw,omitempty"`
	FigItemNo       string `json:"fig_item_no,omitempty"`
	FigItemNoSource string `json:"fig_item_no_source,omitempty"`
	NotIllustrated  bool   `json:"not_illustrated"`

	PartNumberCell      string  `json:"part_number_cell,omitempty"`
	PartNumberExtracted string  `json:"part_number_extracted,omitempty"`
	PartNumberCanonical string  `json:"part_number_canonical,omitempty"`
	PNCorrected         bool    `json:"pn_corrected"`
	PNMethod            string  `json:"pn_method,omitempty"`
	PNBestSimilarity    float64 `json:"pn_best_similarity,omitempty"`
	PNNeedsReview       bool    `json:"pn_needs_review"`
	CorrectionNote      string  `json:"correction_note,omitempty"`

	RowKind           string `json:"row_kind"`
	NomLevel          int    `json:"nom_level"`
	NomenclatureClean string `json:"nomenclature_clean,omitempty"`
	ParentPartID      int64  `json:"parent_part_id,omitempty"`
	AttachedToPartID  int64  `json:"attached_to_part_id,omitempty"`

	Nomenclature string `json:"nomenclature,omitempty"`
	Effectivity  string `json:"effectivity,omitempty"`
	UnitsPerAssy string `json:"units_per_assy,omitempty"`

	// Joined fields, populated by queries.
	SourcePDF   string `json:"source_pdf,omitempty"`
	FigureLabel string `json:"figure_label,omitempty"`
	DateText    string `json:"date_text,omitempty"`
}

// XRef is a cross-reference from a part to another figure.
type XRef struct {
	ID     int64  `json:"id,omitempty"`
	PartID int64  `json:"part_id,omitempty"`
	Kind   string `json:"kind"`
	Target string `json:"target"`
}

// Alias is an alternate spelling of a part number.
type Alias struct {
	ID         int64  `json:"id,omitempty"`
	PartID     int64  `json:"part_id,omitempty"`
	AliasType  string `json:"alias_type"`
	AliasValue string `json:"alias_value"`
}

// SearchResult is the compact row shape returned by search queries.
type SearchResult struct {
	ID                  int64   `json:"id"`
	SourcePDF           string  `json:"source_pdf"`
	RelativePath        string  `json:"relative_path"`
	PageNum             int     `json:"page_num"`
	PageEnd             int     `json:"page_end"`
	FigureCode          string  `json:"figure_code,omitempty"`
	FigItem             string  `json:"fig_item,omitempty"`
	NotIllustrated      bool    `json:"not_illustrated"`
	PartNumberCell      string  `json:"part_number_cell,omitempty"`
	PartNumberCanonical string  `json:"part_number_canonical,omitempty"`
	PNCorrected         bool    `json:"pn_corrected"`
	PNNeedsReview       bool    `json:"pn_needs_review"`
	PNBestSimilarity    float64 `json:"pn_best_similarity,omitempty"`
	NomLevel            int     `json:"nom_level"`
	NomenclaturePreview string  `json:"nomenclature_preview,omitempty"`
	Effectivity         string  `json:"effectivity,omitempty"`
	UnitsPerAssy        string  `json:"units_per_assy,omitempty"`
}

// PartDetail is one part with its hierarchy context and cross-references.
type PartDetail struct {
	Part     Part   `json:"part"`
	Parents  []Part `json:"parents"`
	Siblings []Part `json:"siblings"`
	Children []Part `json:"children"`
	XRefs    []XRef `json:"xrefs"`
}
