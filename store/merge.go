package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuyicheng33/IPC-QUERY/extract"
	"github.com/xuyicheng33/IPC-QUERY/model"
	"github.com/xuyicheng33/IPC-QUERY/pkg/logger"
)

// PDFOpener opens one PDF as a page source. The returned close function
// releases the underlying file.
type PDFOpener func(path string) (extract.PageSource, func() error, error)

// IngestPDFs is the incremental ingest entry point. Extraction runs into a
// scratch database first; each extracted document is then merged into the
// live store, replacing any existing document at the same relative path,
// with one commit per document. A failed extraction is recorded per document
// and the batch continues; a failed merge rolls back only the in-flight
// document and aborts the remainder, leaving prior documents committed.
func (s *Store) IngestPDFs(ctx context.Context, inputs []DocumentInput, open PDFOpener) (model.IngestSummary, error) {
	summary := model.IngestSummary{DocErrors: map[string]string{}}
	if len(inputs) == 0 {
		return summary, nil
	}

	scratchPath, scratch, err := openScratch(s.path)
	if err != nil {
		return summary, err
	}
	defer func() {
		scratch.Close()
		os.Remove(scratchPath)
	}()

	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		src, closeSrc, err := open(in.AbsPath)
		if err != nil {
			summary.DocErrors[in.RelativePath] = err.Error()
			logger.Warn(ctx, "pdf open failed", "document", in.RelativePath, "error", err)
			continue
		}
		err = BuildDocument(scratch, in, src)
		closeSrc()
		if err != nil {
			summary.DocErrors[in.RelativePath] = err.Error()
			logger.Warn(ctx, "extraction failed", "document", in.RelativePath, "error", err)
		}
	}

	err = s.withWrite(func(db *sql.DB) error {
		return mergeScratch(ctx, db, scratch, &summary)
	})
	return summary, err
}

// openScratch creates a throwaway database next to the live one so the two
// stay on the same filesystem.
func openScratch(livePath string) (string, *sql.DB, error) {
	dir := filepath.Dir(livePath)
	f, err := os.CreateTemp(dir, ".ingest-*.sqlite")
	if err != nil {
		return "", nil, fmt.Errorf("create scratch database: %w", err)
	}
	path := f.Name()
	f.Close()
	os.Remove(path) // let sqlite create the file fresh

	db, err := sql.Open("sqlite", rwDSN(path))
	if err != nil {
		return "", nil, fmt.Errorf("open scratch database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := EnsureSchema(db); err != nil {
		db.Close()
		os.Remove(path)
		return "", nil, err
	}
	return path, db, nil
}

type scratchDoc struct {
	id        int64
	pdfName   string
	relPath   string
	pdfPath   string
	minerDir  string
	createdAt string
}

func mergeScratch(ctx context.Context, dst, scratch *sql.DB, summary *model.IngestSummary) error {
	rows, err := scratch.Query(
		"SELECT id, pdf_name, relative_path, pdf_path, miner_dir, created_at FROM documents ORDER BY id",
	)
	if err != nil {
		return fmt.Errorf("read scratch documents: %w", err)
	}
	var docs []scratchDoc
	for rows.Next() {
		var d scratchDoc
		if err := rows.Scan(&d.id, &d.pdfName, &d.relPath, &d.pdfPath, &d.minerDir, &d.createdAt); err != nil {
			rows.Close()
			return err
		}
		docs = append(docs, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := mergeDocument(dst, scratch, doc, summary); err != nil {
			summary.DocErrors[doc.relPath] = err.Error()
			return fmt.Errorf("merge %s: %w", doc.relPath, err)
		}
	}
	return nil
}

// mergeDocument replaces the live document at doc.relPath with the scratch
// extraction, remapping part ids, in one transaction.
func mergeDocument(dst, scratch *sql.DB, doc scratchDoc, summary *model.IngestSummary) error {
	tx, err := dst.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRow("SELECT id FROM documents WHERE relative_path = ?", doc.relPath).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return err
	default:
		if _, err := tx.Exec("DELETE FROM documents WHERE id = ?", existingID); err != nil {
			return err
		}
		summary.DocsReplaced++
	}

	res, err := tx.Exec(
		"INSERT INTO documents(pdf_name, relative_path, pdf_path, miner_dir, created_at) VALUES (?, ?, ?, ?, ?)",
		doc.pdfName, doc.relPath, doc.pdfPath, doc.minerDir, doc.createdAt,
	)
	if err != nil {
		return err
	}
	dstDocID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	summary.DocsIngested++

	if err := copyPages(tx, scratch, doc.id, dstDocID); err != nil {
		return err
	}

	idMap, err := copyParts(tx, scratch, doc.id, dstDocID)
	if err != nil {
		return err
	}
	summary.PartsIngested += len(idMap)

	nXrefs, err := copyXRefs(tx, scratch, doc.id, idMap)
	if err != nil {
		return err
	}
	summary.XRefsIngested += nXrefs

	nAliases, err := copyAliases(tx, scratch, doc.id, idMap)
	if err != nil {
		return err
	}
	summary.AliasesIngested += nAliases

	return tx.Commit()
}

func copyPages(tx *sql.Tx, scratch *sql.DB, srcDocID, dstDocID int64) error {
	rows, err := scratch.Query(`
		SELECT page_num, figure_code, figure_label, date_text, page_token, rf_text
		FROM pages WHERE document_id = ? ORDER BY page_num`, srcDocID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pageNum                                      int
			figCode, figLabel, dateText, pageTok, rfText sql.NullString
		)
		if err := rows.Scan(&pageNum, &figCode, &figLabel, &dateText, &pageTok, &rfText); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"INSERT INTO pages(document_id, page_num, figure_code, figure_label, date_text, page_token, rf_text) VALUES (?, ?, ?, ?, ?, ?, ?)",
			dstDocID, pageNum, figCode, figLabel, dateText, pageTok, rfText,
		); err != nil {
			return err
		}
	}
	return rows.Err()
}

// scratchPart carries one scratch parts row verbatim for remapped insertion.
type scratchPart struct {
	id         int64
	pageNum    int
	pageEnd    int
	extractor  string
	rowKind    string
	cols       [15]sql.NullString // nullable text columns in select order
	notIll     int
	pnCorr     int
	pnReview   int
	nomLevel   int
	sim        sql.NullFloat64
	parentID   sql.NullInt64
	attachedID sql.NullInt64
}

func copyParts(tx *sql.Tx, scratch *sql.DB, srcDocID, dstDocID int64) (map[int64]int64, error) {
	rows, err := scratch.Query(`
		SELECT id, page_num, page_end, extractor, meta_data_raw, figure_code,
		       fig_item_raw, fig_item_no, fig_item_no_source, not_illustrated,
		       part_number_cell, part_number_extracted, part_number_canonical,
		       pn_corrected, pn_method, pn_best_similarity, pn_needs_review, correction_note,
		       row_kind, nom_level, nomenclature_clean, parent_part_id, attached_to_part_id,
		       nomenclature, effectivity, units_per_assy, miner_table_img_path
		FROM parts WHERE document_id = ? ORDER BY id`, srcDocID)
	if err != nil {
		return nil, err
	}

	var parts []scratchPart
	for rows.Next() {
		var p scratchPart
		err := rows.Scan(
			&p.id, &p.pageNum, &p.pageEnd, &p.extractor,
			&p.cols[0], &p.cols[1], // meta_data_raw, figure_code
			&p.cols[2], &p.cols[3], &p.cols[4], &p.notIll, // fig item fields
			&p.cols[5], &p.cols[6], &p.cols[7], // part number fields
			&p.pnCorr, &p.cols[8], &p.sim, &p.pnReview, &p.cols[9], // canon fields
			&p.rowKind, &p.nomLevel, &p.cols[10], &p.parentID, &p.attachedID,
			&p.cols[11], &p.cols[12], &p.cols[13], &p.cols[14],
		)
		if err != nil {
			rows.Close()
			return nil, err
		}
		parts = append(parts, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var maxID int64
	if err := tx.QueryRow("SELECT COALESCE(MAX(id), 0) FROM parts").Scan(&maxID); err != nil {
		return nil, err
	}

	idMap := make(map[int64]int64, len(parts))
	for i, p := range parts {
		idMap[p.id] = maxID + int64(i) + 1
	}

	remap := func(v sql.NullInt64) sql.NullInt64 {
		if !v.Valid {
			return v
		}
		mapped, ok := idMap[v.Int64]
		if !ok {
			return sql.NullInt64{}
		}
		return sql.NullInt64{Int64: mapped, Valid: true}
	}

	for _, p := range parts {
		_, err := tx.Exec(`
			INSERT INTO parts(
			  id, document_id, page_num, page_end, extractor, meta_data_raw, figure_code,
			  fig_item_raw, fig_item_no, fig_item_no_source, not_illustrated,
			  part_number_cell, part_number_extracted, part_number_canonical,
			  pn_corrected, pn_method, pn_best_similarity, pn_needs_review, correction_note,
			  row_kind, nom_level, nomenclature_clean, parent_part_id, attached_to_part_id,
			  nomenclature, effectivity, units_per_assy, miner_table_img_path
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			idMap[p.id], dstDocID, p.pageNum, p.pageEnd, p.extractor,
			p.cols[0], p.cols[1],
			p.cols[2], p.cols[3], p.cols[4], p.notIll,
			p.cols[5], p.cols[6], p.cols[7],
			p.pnCorr, p.cols[8], p.sim, p.pnReview, p.cols[9],
			p.rowKind, p.nomLevel, p.cols[10], remap(p.parentID), remap(p.attachedID),
			p.cols[11], p.cols[12], p.cols[13], p.cols[14],
		)
		if err != nil {
			return nil, err
		}
	}
	return idMap, nil
}

func copyXRefs(tx *sql.Tx, scratch *sql.DB, srcDocID int64, idMap map[int64]int64) (int, error) {
	rows, err := scratch.Query(`
		SELECT x.part_id, x.kind, x.target
		FROM xrefs x JOIN parts p ON p.id = x.part_id
		WHERE p.document_id = ?`, srcDocID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var partID int64
		var kind, target string
		if err := rows.Scan(&partID, &kind, &target); err != nil {
			return n, err
		}
		mapped, ok := idMap[partID]
		if !ok {
			continue
		}
		if _, err := tx.Exec(
			"INSERT INTO xrefs(part_id, kind, target) VALUES (?, ?, ?)", mapped, kind, target,
		); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

func copyAliases(tx *sql.Tx, scratch *sql.DB, srcDocID int64, idMap map[int64]int64) (int, error) {
	rows, err := scratch.Query(`
		SELECT a.part_id, a.alias_type, a.alias_value
		FROM aliases a JOIN parts p ON p.id = a.part_id
		WHERE p.document_id = ?`, srcDocID)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var partID int64
		var aliasType, aliasValue string
		if err := rows.Scan(&partID, &aliasType, &aliasValue); err != nil {
			return n, err
		}
		mapped, ok := idMap[partID]
		if !ok {
			continue
		}
		if _, err := tx.Exec(
			"INSERT INTO aliases(part_id, alias_type, alias_value) VALUES (?, ?, ?)", mapped, aliasType, aliasValue,
		); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}
