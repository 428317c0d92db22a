package model

// Document represents one ingested PDF. Identity is RelativePath (path
// relative to the PDF root), not the bare filename, so the same name may
// exist in different folders.
type Document struct {
	ID           int64  `json:"id"`
	PDFName      string `json:"pdf_name"`
	RelativePath string `json:"relative_path"`
	PDFPath      string `json:"pdf_path"`
	MinerDir     string `json:"miner_dir"`
	CreatedAt    string `json:"created_at"`
}

// Page holds the footer metadata extracted for one page of a document.
type Page struct {
	ID          int64  `json:"id"`
	DocumentID  int64  `json:"document_id"`
	PageNum     int    `json:"page_num"`
	FigureCode  string `json:"figure_code,omitempty"`
	FigureLabel string `json:"figure_label,omitempty"`
	DateText    string `json:"date_text,omitempty"`
	PageToken   string `json:"page_token,omitempty"`
	RFText      string `json:"rf_text,omitempty"`
}

// ScanState is the last-seen filesystem fingerprint of one relative path.
type ScanState struct {
	RelativePath string  `json:"relative_path"`
	Size         int64   `json:"size"`
	MTime        float64 `json:"mtime"`
	ContentHash  string  `json:"content_hash,omitempty"`
	UpdatedAt    string  `json:"updated_at"`
}

// DocTreeNode is one entry of the folder/document tree under the PDF root.
type DocTreeNode struct {
	Name         string        `json:"name"`
	RelativePath string        `json:"relative_path"`
	IsDir        bool          `json:"is_dir"`
	Children     []DocTreeNode `json:"children,omitempty"`
}
