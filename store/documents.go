package store

import (
	"database/sql"
	"fmt"
	"path"

	"github.com/xuyicheng33/IPC-QUERY/model"
)

// DeleteCounts reports what a document deletion removed.
type DeleteCounts struct {
	Pages   int `json:"pages"`
	Parts   int `json:"parts"`
	XRefs   int `json:"xrefs"`
	Aliases int `json:"aliases"`
}

func scanDocument(row *sql.Row) (model.Document, error) {
	var d model.Document
	err := row.Scan(&d.ID, &d.PDFName, &d.RelativePath, &d.PDFPath, &d.MinerDir, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, model.ErrNotFound
	}
	return d, err
}

const documentCols = "id, pdf_name, relative_path, pdf_path, miner_dir, created_at"

// GetDocument fetches a document by its relative path.
func (s *Store) GetDocument(relPath string) (model.Document, error) {
	return scanDocument(s.ro.QueryRow(
		"SELECT "+documentCols+" FROM documents WHERE relative_path = ?", relPath,
	))
}

// ResolveDocument resolves a path or bare filename to a single document.
// An exact relative-path match wins; otherwise the bare filename is matched
// against all documents, and an ambiguous match is a conflict carrying the
// colliding paths.
func (s *Store) ResolveDocument(pathOrName string) (model.Document, error) {
	doc, err := s.GetDocument(pathOrName)
	if err == nil {
		return doc, nil
	}
	if err != model.ErrNotFound {
		return model.Document{}, err
	}

	rows, err := s.ro.Query(
		"SELECT "+documentCols+" FROM documents WHERE pdf_name = ? ORDER BY relative_path", pathOrName,
	)
	if err != nil {
		return model.Document{}, err
	}
	defer rows.Close()

	var matches []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.PDFName, &d.RelativePath, &d.PDFPath, &d.MinerDir, &d.CreatedAt); err != nil {
			return model.Document{}, err
		}
		matches = append(matches, d)
	}
	if err := rows.Err(); err != nil {
		return model.Document{}, err
	}

	switch len(matches) {
	case 0:
		return model.Document{}, model.ErrNotFound
	case 1:
		return matches[0], nil
	default:
		paths := make([]string, len(matches))
		for i, m := range matches {
			paths[i] = m.RelativePath
		}
		return model.Document{}, model.Conflict(
			fmt.Sprintf("%q matches %d documents", pathOrName, len(matches)), paths...)
	}
}

// ListDocuments returns all documents ordered by relative path.
func (s *Store) ListDocuments() ([]model.Document, error) {
	rows, err := s.ro.Query("SELECT " + documentCols + " FROM documents ORDER BY relative_path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		var d model.Document
		if err := rows.Scan(&d.ID, &d.PDFName, &d.RelativePath, &d.PDFPath, &d.MinerDir, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocument removes the document row (cascading to pages, parts, xrefs
// and aliases) and its scan state, returning the deleted row counts.
func (s *Store) DeleteDocument(relPath string) (DeleteCounts, error) {
	var counts DeleteCounts
	err := s.withWrite(func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var docID int64
		err = tx.QueryRow("SELECT id FROM documents WHERE relative_path = ?", relPath).Scan(&docID)
		if err == sql.ErrNoRows {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}

		count := func(query string, dst *int) error {
			return tx.QueryRow(query, docID).Scan(dst)
		}
		if err := count("SELECT COUNT(1) FROM pages WHERE document_id = ?", &counts.Pages); err != nil {
			return err
		}
		if err := count("SELECT COUNT(1) FROM parts WHERE document_id = ?", &counts.Parts); err != nil {
			return err
		}
		if err := count(
			"SELECT COUNT(1) FROM xrefs x JOIN parts p ON p.id = x.part_id WHERE p.document_id = ?",
			&counts.XRefs,
		); err != nil {
			return err
		}
		if err := count(
			"SELECT COUNT(1) FROM aliases a JOIN parts p ON p.id = a.part_id WHERE p.document_id = ?",
			&counts.Aliases,
		); err != nil {
			return err
		}

		if _, err := tx.Exec("DELETE FROM documents WHERE id = ?", docID); err != nil {
			return err
		}
		if _, err := tx.Exec("DELETE FROM scan_state WHERE relative_path = ?", relPath); err != nil {
			return err
		}
		return tx.Commit()
	})
	return counts, err
}

// RelocateDocument updates a document's identity after its file was renamed
// or moved on disk. The target relative path must be free.
func (s *Store) RelocateDocument(oldRel, newRel string) error {
	return s.withWrite(func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		var occupied int64
		err = tx.QueryRow("SELECT id FROM documents WHERE relative_path = ?", newRel).Scan(&occupied)
		if err == nil {
			return model.Conflict(fmt.Sprintf("document already exists at %q", newRel), newRel)
		}
		if err != sql.ErrNoRows {
			return err
		}

		res, err := tx.Exec(
			"UPDATE documents SET relative_path = ?, pdf_path = ?, pdf_name = ? WHERE relative_path = ?",
			newRel, newRel, path.Base(newRel), oldRel,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return model.ErrNotFound
		}

		// scan_state follows the document identity.
		if _, err := tx.Exec("DELETE FROM scan_state WHERE relative_path = ?", newRel); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"UPDATE scan_state SET relative_path = ? WHERE relative_path = ?", newRel, oldRel,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// RelocateFolder rewrites the relative paths of every document under oldDir
// to live under newDir. Used after a folder rename on disk.
func (s *Store) RelocateFolder(oldDir, newDir string) (int, error) {
	moved := 0
	err := s.withWrite(func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		oldPrefix := oldDir + "/"
		newPrefix := newDir + "/"
		res, err := tx.Exec(`
			UPDATE documents
			SET relative_path = ?2 || substr(relative_path, length(?1) + 1),
			    pdf_path = ?2 || substr(pdf_path, length(?1) + 1)
			WHERE relative_path LIKE ?1 || '%'`,
			oldPrefix, newPrefix,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			moved = int(n)
		}

		if _, err := tx.Exec(`
			UPDATE scan_state
			SET relative_path = ?2 || substr(relative_path, length(?1) + 1)
			WHERE relative_path LIKE ?1 || '%'`,
			oldPrefix, newPrefix,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
	return moved, err
}
