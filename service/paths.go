package service

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/xuyicheng33/IPC-QUERY/extract"
	"github.com/xuyicheng33/IPC-QUERY/model"
	"github.com/xuyicheng33/IPC-QUERY/pdfio"
	"github.com/xuyicheng33/IPC-QUERY/store"
)

// openPDF adapts pdfio to the store's opener contract.
func openPDF(absPath string) (extract.PageSource, func() error, error) {
	r, err := pdfio.Open(absPath)
	if err != nil {
		return nil, nil, err
	}
	return r, r.Close, nil
}

var _ store.PDFOpener = openPDF

// normalizeRel validates a client-supplied path relative to the pdf root.
// Empty means the root itself. Backslashes are accepted from Windows clients;
// absolute paths and dot segments are rejected so a path can never escape
// the root.
func normalizeRel(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	p = strings.Trim(p, "/")
	if p == "" {
		return "", nil
	}
	if path.IsAbs(p) || strings.Contains(p, "//") {
		return "", model.Validation("invalid path %q", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." || strings.TrimSpace(seg) == "" {
			return "", model.Validation("invalid path segment in %q", p)
		}
	}
	return p, nil
}

// normalizePDFRel is normalizeRel for paths that must name a PDF file.
func normalizePDFRel(p string) (string, error) {
	rel, err := normalizeRel(p)
	if err != nil {
		return "", err
	}
	if rel == "" {
		return "", model.Validation("path is required")
	}
	if !strings.EqualFold(path.Ext(rel), ".pdf") {
		return "", model.Validation("%q is not a PDF path", p)
	}
	return rel, nil
}

// validPDFName checks a bare filename for uploads and renames.
func validPDFName(name string) error {
	if name == "" {
		return model.Validation("filename is required")
	}
	if name != filepath.Base(name) || name != path.Base(name) {
		return model.Validation("filename must not contain path separators")
	}
	if name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return model.Validation("invalid filename %q", name)
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		return model.Validation("only .pdf files are accepted")
	}
	return nil
}

// underRoot joins a validated relative path onto the root directory.
func underRoot(root, rel string) string {
	if rel == "" {
		return root
	}
	return filepath.Join(root, filepath.FromSlash(rel))
}
