package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xuyicheng33/IPC-QUERY/extract"
)

// DocumentInput identifies one PDF to extract.
type DocumentInput struct {
	// RelativePath is the document identity: the path relative to the PDF
	// root, forward slashes.
	RelativePath string
	// PDFName is the display name (base filename).
	PDFName string
	// AbsPath is the file location on disk.
	AbsPath string
}

const extractorName = "pdf_coords"

func minerDirJSON() string {
	b, _ := json.Marshal(map[string]any{
		"kind":      extractorName,
		"units":     "cm",
		"pt_per_cm": extract.PtPerCM,
	})
	return string(b)
}

// BuildDocument extracts one PDF into db, which is expected to hold the
// catalog schema. Rows are deduplicated by the composite natural key, so
// building the same unchanged document twice inserts nothing new.
func BuildDocument(db *sql.DB, in DocumentInput, src extract.PageSource) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin build tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO documents(pdf_name, relative_path, pdf_path, miner_dir, created_at) VALUES (?, ?, ?, ?, ?)",
		in.PDFName, in.RelativePath, in.RelativePath, minerDirJSON(), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", in.RelativePath, err)
	}
	docID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	records, err := extract.Records(src)
	if err != nil {
		return fmt.Errorf("extract %s: %w", in.RelativePath, err)
	}

	metaCache := make(map[int]extract.PageMeta)
	candCache := make(map[int]*extract.CandidateIndex)
	pagesInserted := make(map[int]bool)
	hier := extract.NewHierarchyTracker()

	for _, rec := range records {
		pageNum := rec.StartPage
		if pageNum < 1 || pageNum > src.PageCount() {
			continue
		}

		meta, ok := metaCache[pageNum]
		if !ok {
			meta = extract.ParseMetaClip(rec.MetaRaw)
			metaCache[pageNum] = meta
		}

		figKey := fmt.Sprintf("%d:%s", docID, meta.FigureCode)
		if meta.FigureCode == "" {
			figKey = fmt.Sprintf("%d:PAGE%d", docID, pageNum)
		}

		if !pagesInserted[pageNum] {
			_, err := tx.Exec(
				"INSERT INTO pages(document_id, page_num, figure_code, figure_label, date_text, page_token, rf_text) VALUES (?, ?, ?, ?, ?, ?, ?)",
				docID, pageNum,
				nullStr(meta.FigureCode), nullStr(meta.FigureLabel), nullStr(meta.DateText),
				nullStr(meta.PageToken), nullStr(meta.RFText),
			)
			if err != nil {
				return fmt.Errorf("insert page %d: %w", pageNum, err)
			}
			pagesInserted[pageNum] = true
		}

		cand, ok := candCache[pageNum]
		if !ok {
			text, err := src.PlainText(pageNum)
			if err != nil {
				return fmt.Errorf("page %d text: %w", pageNum, err)
			}
			cand = extract.NewCandidateIndex(text)
			candCache[pageNum] = cand
		}

		fi := extract.ParseFigItem(rec.FigItemText)
		canon := cand.Canonicalize(rec.PartNumberCell)

		nomenclature := extract.CleanWatermarks(rec.Nomenclature)
		nomLevel, nomClean := extract.NomLevelAndClean(nomenclature)

		var parentID sql.NullInt64
		if id, ok := hier.Parent(figKey, nomLevel); ok {
			parentID = sql.NullInt64{Int64: id, Valid: true}
		}

		partID, inserted, err := insertPartRow(tx, partRow{
			docID:        docID,
			rec:          rec,
			meta:         meta,
			fi:           fi,
			canon:        canon,
			nomenclature: nomenclature,
			nomLevel:     nomLevel,
			nomClean:     nomClean,
			parentID:     parentID,
		})
		if err != nil {
			return err
		}

		hier.Push(figKey, nomLevel, partID)

		if inserted {
			for _, xr := range extract.ExtractXRefs(nomenclature) {
				if _, err := tx.Exec(
					"INSERT INTO xrefs(part_id, kind, target) VALUES (?, ?, ?)",
					partID, xr.Kind, xr.Target,
				); err != nil {
					return fmt.Errorf("insert xref: %w", err)
				}
			}
		}
	}

	return tx.Commit()
}

type partRow struct {
	docID        int64
	rec          extract.Record
	meta         extract.PageMeta
	fi           extract.FigItem
	canon        extract.Canonicalization
	nomenclature string
	nomLevel     int
	nomClean     string
	parentID     sql.NullInt64
}

// insertPartRow inserts one part row, or resolves the existing row's id when
// the dedup key already holds it.
func insertPartRow(tx *sql.Tx, r partRow) (int64, bool, error) {
	figItemSource := ""
	if r.fi.No != "" {
		figItemSource = extractorName
	}

	var sim sql.NullFloat64
	if r.canon.HasSimilarity {
		sim = sql.NullFloat64{Float64: r.canon.BestSimilarity, Valid: true}
	}

	res, err := tx.Exec(`
		INSERT OR IGNORE INTO parts(
		  document_id, page_num, page_end, extractor, meta_data_raw, figure_code,
		  fig_item_raw, fig_item_no, fig_item_no_source, not_illustrated,
		  part_number_cell, part_number_extracted, part_number_canonical,
		  pn_corrected, pn_method, pn_best_similarity, pn_needs_review, correction_note,
		  row_kind, nom_level, nomenclature_clean, parent_part_id, attached_to_part_id,
		  nomenclature, effectivity, units_per_assy, miner_table_img_path
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.docID, r.rec.StartPage, r.rec.EndPage, extractorName,
		nullStr(r.rec.MetaRaw), nullStr(r.meta.FigureCode),
		nullStr(r.fi.Raw), nullStr(r.fi.No), nullStr(figItemSource), boolInt(r.fi.NotIllustrated),
		nullStr(r.rec.PartNumberCell), nullStr(r.rec.PartNumberCell), nullStr(r.canon.Canonical),
		boolInt(r.canon.Corrected), r.canon.Method, sim, boolInt(r.canon.NeedsReview), nullStr(r.canon.Note),
		"part", r.nomLevel, nullStr(r.nomClean), r.parentID, nil,
		nullStr(r.nomenclature), nullStr(r.rec.Effectivity), nullStr(r.rec.UnitsPerAssy), nil,
	)
	if err != nil {
		return 0, false, fmt.Errorf("insert part: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, false, err
		}
		return id, true, nil
	}

	// Dedup hit: resolve the existing row via the natural key.
	var id int64
	err = tx.QueryRow(`
		SELECT id FROM parts
		WHERE document_id = ?
		  AND page_num = ?
		  AND COALESCE(figure_code, '') = ?
		  AND COALESCE(fig_item_raw, '') = ?
		  AND COALESCE(fig_item_no, '') = ?
		  AND not_illustrated = ?
		  AND COALESCE(part_number_cell, '') = ?
		  AND COALESCE(nomenclature_clean, '') = ?
		  AND COALESCE(effectivity, '') = ?
		  AND COALESCE(units_per_assy, '') = ?
		  AND nom_level = ?
		  AND COALESCE(parent_part_id, 0) = ?
		ORDER BY id LIMIT 1`,
		r.docID, r.rec.StartPage,
		r.meta.FigureCode, r.fi.Raw, r.fi.No, boolInt(r.fi.NotIllustrated),
		r.rec.PartNumberCell, r.nomClean, r.rec.Effectivity, r.rec.UnitsPerAssy,
		r.nomLevel, r.parentID.Int64,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("resolve deduplicated part: %w", err)
	}
	return id, false, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
