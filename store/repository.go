package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/xuyicheng33/IPC-QUERY/model"
)

// Read-side queries. All of them run on the read-only connection pool and a
// ranked UNION over the part-number columns and aliases: exact match before
// prefix match before contains match, canonical column before raw columns.

var pnQueryRE = regexp.MustCompile(`^[A-Z0-9][A-Z0-9./-]*$`)

func looksLikePNQuery(q string) bool {
	q = strings.ToUpper(strings.TrimSpace(q))
	if q == "" || strings.HasPrefix(q, ".") || strings.ContainsAny(q, " \t") {
		return false
	}
	if !strings.ContainsFunc(q, func(r rune) bool { return r >= '0' && r <= '9' }) {
		return false
	}
	return pnQueryRE.MatchString(q)
}

// FigItemDisplay formats the FIG ITEM column for search results.
func FigItemDisplay(raw, no string, notIllustrated bool) string {
	raw = strings.TrimSpace(raw)
	no = strings.TrimSpace(no)
	switch {
	case raw == "-" && no != "":
		return "- " + no
	case raw != "" && no != "":
		return raw + " " + no
	case raw != "":
		return raw
	case no != "":
		if notIllustrated {
			return "- " + no
		}
		return no
	}
	return ""
}

const searchResultCols = `
	  p.id,
	  d.pdf_name AS source_pdf,
	  d.relative_path,
	  p.page_num,
	  p.page_end,
	  p.figure_code,
	  p.fig_item_raw,
	  p.fig_item_no,
	  p.not_illustrated,
	  p.part_number_cell,
	  p.part_number_canonical,
	  p.pn_corrected,
	  p.pn_needs_review,
	  p.pn_best_similarity,
	  p.nom_level,
	  substr(replace(coalesce(p.nomenclature_clean, p.nomenclature, ''), char(10), ' '), 1, 220) AS nomenclature_preview,
	  p.effectivity,
	  p.units_per_assy`

func scanSearchResult(rows *sql.Rows) (model.SearchResult, error) {
	var (
		r                                    model.SearchResult
		figCode, figRaw, figNo               sql.NullString
		pnCell, pnCanon, preview, eff, units sql.NullString
		notIll, corrected, review            int
		sim                                  sql.NullFloat64
	)
	err := rows.Scan(
		&r.ID, &r.SourcePDF, &r.RelativePath, &r.PageNum, &r.PageEnd,
		&figCode, &figRaw, &figNo, &notIll,
		&pnCell, &pnCanon, &corrected, &review, &sim,
		&r.NomLevel, &preview, &eff, &units,
	)
	if err != nil {
		return r, err
	}
	r.FigureCode = figCode.String
	r.NotIllustrated = notIll != 0
	r.FigItem = FigItemDisplay(figRaw.String, figNo.String, r.NotIllustrated)
	r.PartNumberCell = pnCell.String
	r.PartNumberCanonical = pnCanon.String
	r.PNCorrected = corrected != 0
	r.PNNeedsReview = review != 0
	r.PNBestSimilarity = sim.Float64
	r.NomenclaturePreview = preview.String
	r.Effectivity = eff.String
	r.UnitsPerAssy = units.String
	return r, nil
}

func (s *Store) runSearch(withCTE, orderBy string, args []any, limit, offset int) ([]model.SearchResult, int, error) {
	countSQL := withCTE + `
	SELECT count(1)
	FROM best
	JOIN parts p ON p.id = best.id
	WHERE p.row_kind = 'part'`

	var total int
	if err := s.ro.QueryRow(countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("search count: %w", err)
	}

	querySQL := withCTE + `
	SELECT` + searchResultCols + `
	FROM best
	JOIN parts p ON p.id = best.id
	JOIN documents d ON d.id = p.document_id
	WHERE p.row_kind = 'part'
	ORDER BY ` + orderBy + `
	LIMIT ` + fmt.Sprint(limit) + ` OFFSET ` + fmt.Sprint(max(offset, 0))

	rows, err := s.ro.Query(querySQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var out []model.SearchResult
	for rows.Next() {
		r, err := scanSearchResult(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

const pnOrder = "best.rank, p.pn_needs_review DESC, coalesce(p.pn_best_similarity, 0.0) DESC, d.relative_path, p.figure_code, p.page_num"
const termOrder = "best.rank, d.relative_path, p.figure_code, p.page_num"

// SearchPN searches by part number: exact, then prefix (queries of 4+ chars),
// then contains (3+ chars), over canonical/extracted/cell values and aliases.
func (s *Store) SearchPN(query string, limit, offset int) ([]model.SearchResult, int, error) {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil, 0, nil
	}

	hits := []string{
		"SELECT id AS id, 0 AS rank FROM parts WHERE part_number_canonical = :q",
		"SELECT id AS id, 1 AS rank FROM parts WHERE part_number_extracted = :q",
		"SELECT id AS id, 2 AS rank FROM parts WHERE part_number_cell = :q",
		"SELECT part_id AS id, 3 AS rank FROM aliases WHERE alias_value = :q",
	}
	if len(q) >= 4 {
		hits = append(hits,
			"SELECT id AS id, 10 AS rank FROM parts WHERE part_number_canonical LIKE :q_prefix",
			"SELECT id AS id, 11 AS rank FROM parts WHERE part_number_extracted LIKE :q_prefix",
			"SELECT id AS id, 12 AS rank FROM parts WHERE part_number_cell LIKE :q_prefix",
			"SELECT part_id AS id, 13 AS rank FROM aliases WHERE alias_value LIKE :q_prefix",
		)
	}
	if len(q) >= 3 {
		hits = append(hits,
			"SELECT id AS id, 20 AS rank FROM parts WHERE part_number_canonical LIKE :q_contains",
			"SELECT id AS id, 21 AS rank FROM parts WHERE part_number_extracted LIKE :q_contains",
			"SELECT id AS id, 22 AS rank FROM parts WHERE part_number_cell LIKE :q_contains",
			"SELECT part_id AS id, 23 AS rank FROM aliases WHERE alias_value LIKE :q_contains",
		)
	}

	withCTE := searchCTE(hits)
	args := []any{sql.Named("q", q)}
	if len(q) >= 4 {
		args = append(args, sql.Named("q_prefix", q+"%"))
	}
	if len(q) >= 3 {
		args = append(args, sql.Named("q_contains", "%"+q+"%"))
	}
	return s.runSearch(withCTE, pnOrder, args, limit, offset)
}

// SearchTerm searches nomenclature text. A query of only dots filters by
// hierarchy level instead of text.
func (s *Store) SearchTerm(query string, limit, offset int) ([]model.SearchResult, int, error) {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil, 0, nil
	}

	dotPrefix := strings.HasPrefix(q, ".")
	dotOnly := dotPrefix && strings.Trim(q, ".") == ""
	termKW := len(q) >= 3 || (len(q) >= 2 && strings.ContainsFunc(q, func(r rune) bool { return r >= '0' && r <= '9' }))
	if !dotPrefix && !termKW {
		return nil, 0, nil
	}

	var hits []string
	if dotOnly {
		hits = []string{"SELECT id AS id, 0 AS rank FROM parts WHERE nom_level >= :min_level"}
	} else {
		hits = []string{"SELECT id AS id, 0 AS rank FROM parts WHERE nomenclature_clean LIKE :q_contains"}
	}
	if termKW && !dotPrefix {
		hits = append(hits,
			"SELECT attached_to_part_id AS id, 1 AS rank FROM parts "+
				"WHERE attached_to_part_id IS NOT NULL "+
				"AND coalesce(nomenclature_clean, nomenclature, '') LIKE :q_contains",
		)
	}

	withCTE := searchCTE(hits)
	var args []any
	if dotOnly {
		args = append(args, sql.Named("min_level", len(q)))
	} else {
		args = append(args, sql.Named("q_contains", "%"+q+"%"))
	}
	return s.runSearch(withCTE, termOrder, args, limit, offset)
}

// SearchAll combines part-number and term search. A query shaped like a part
// number ranks part-number hits first; otherwise term hits win.
func (s *Store) SearchAll(query string, limit, offset int) ([]model.SearchResult, int, error) {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil, 0, nil
	}

	pnLike := looksLikePNQuery(q)
	dotPrefix := strings.HasPrefix(q, ".")
	dotOnly := dotPrefix && strings.Trim(q, ".") == ""
	termKW := len(q) >= 3 || (len(q) >= 2 && strings.ContainsFunc(q, func(r rune) bool { return r >= '0' && r <= '9' }))
	termEnabled := dotPrefix || termKW

	pnOffset, termOffset := 0, 1000
	if !pnLike {
		pnOffset, termOffset = 1000, 0
	}

	hits := []string{
		fmt.Sprintf("SELECT id AS id, %d AS rank FROM parts WHERE part_number_canonical = :q", pnOffset),
		fmt.Sprintf("SELECT id AS id, %d AS rank FROM parts WHERE part_number_extracted = :q", pnOffset+1),
		fmt.Sprintf("SELECT id AS id, %d AS rank FROM parts WHERE part_number_cell = :q", pnOffset+2),
		fmt.Sprintf("SELECT part_id AS id, %d AS rank FROM aliases WHERE alias_value = :q", pnOffset+3),
	}
	if len(q) >= 4 {
		hits = append(hits,
			fmt.Sprintf("SELECT id AS id, %d AS rank FROM parts WHERE part_number_canonical LIKE :q_prefix", pnOffset+10),
			fmt.Sprintf("SELECT id AS id, %d AS rank FROM parts WHERE part_number_extracted LIKE :q_prefix", pnOffset+11),
			fmt.Sprintf("SELECT id AS id, %d AS rank FROM parts WHERE part_number_cell LIKE :q_prefix", pnOffset+12),
			fmt.Sprintf("SELECT part_id AS id, %d AS rank FROM aliases WHERE alias_value LIKE :q_prefix", pnOffset+13),
		)
	}
	if len(q) >= 3 {
		hits = append(hits,
			fmt.Sprintf("SELECT id AS id, %d AS rank FROM parts WHERE part_number_canonical LIKE :q_contains", pnOffset+20),
			fmt.Sprintf("SELECT id AS id, %d AS rank FROM parts WHERE part_number_extracted LIKE :q_contains", pnOffset+21),
			fmt.Sprintf("SELECT id AS id, %d AS rank FROM parts WHERE part_number_cell LIKE :q_contains", pnOffset+22),
			fmt.Sprintf("SELECT part_id AS id, %d AS rank FROM aliases WHERE alias_value LIKE :q_contains", pnOffset+23),
		)
	}
	if termEnabled {
		if dotOnly {
			hits = append(hits,
				fmt.Sprintf("SELECT id AS id, %d AS rank FROM parts WHERE nom_level >= :min_level", termOffset),
			)
		} else {
			hits = append(hits,
				fmt.Sprintf("SELECT id AS id, %d AS rank FROM parts WHERE nomenclature_clean LIKE :q_contains", termOffset),
			)
			if termKW && !dotPrefix {
				hits = append(hits,
					fmt.Sprintf("SELECT attached_to_part_id AS id, %d AS rank FROM parts "+
						"WHERE attached_to_part_id IS NOT NULL "+
						"AND coalesce(nomenclature_clean, nomenclature, '') LIKE :q_contains", termOffset+1),
				)
			}
		}
	}

	order := termOrder
	if pnLike {
		order = pnOrder
	}

	withCTE := searchCTE(hits)
	args := []any{sql.Named("q", q)}
	if len(q) >= 4 {
		args = append(args, sql.Named("q_prefix", q+"%"))
	}
	if len(q) >= 3 || (termEnabled && !dotOnly) {
		args = append(args, sql.Named("q_contains", "%"+q+"%"))
	}
	if termEnabled && dotOnly {
		args = append(args, sql.Named("min_level", len(q)))
	}
	return s.runSearch(withCTE, order, args, limit, offset)
}

func searchCTE(hits []string) string {
	return `
	WITH hits(id, rank) AS (
	    ` + strings.Join(hits, "\n	    UNION ALL\n	    ") + `
	),
	best AS (
	    SELECT id, min(rank) AS rank FROM hits GROUP BY id
	)`
}

const partCols = `
	  p.id, p.document_id, p.page_num, p.page_end, p.extractor,
	  p.meta_data_raw, p.figure_code,
	  p.fig_item_raw, p.fig_item_no, p.fig_item_no_source, p.not_illustrated,
	  p.part_number_cell, p.part_number_extracted, p.part_number_canonical,
	  p.pn_corrected, p.pn_method, p.pn_best_similarity, p.pn_needs_review, p.correction_note,
	  p.row_kind, p.nom_level, p.nomenclature_clean, p.parent_part_id, p.attached_to_part_id,
	  p.nomenclature, p.effectivity, p.units_per_assy,
	  d.pdf_name,
	  pg.figure_label, pg.date_text`

const partQuery = `
	SELECT` + partCols + `
	FROM parts p
	JOIN documents d ON d.id = p.document_id
	LEFT JOIN pages pg ON pg.document_id = p.document_id AND pg.page_num = p.page_num
	WHERE p.id = ?`

type partScanner interface {
	Scan(dest ...any) error
}

func scanPart(row partScanner) (model.Part, error) {
	var (
		p                                      model.Part
		metaRaw, figCode                       sql.NullString
		figRaw, figNo, figSrc                  sql.NullString
		pnCell, pnExt, pnCanon, pnMethod, note sql.NullString
		nomClean, nom, eff, units              sql.NullString
		figLabel, dateText                     sql.NullString
		notIll, corrected, review              int
		sim                                    sql.NullFloat64
		parentID, attachedID                   sql.NullInt64
	)
	err := row.Scan(
		&p.ID, &p.DocumentID, &p.PageNum, &p.PageEnd, &p.Extractor,
		&metaRaw, &figCode,
		&figRaw, &figNo, &figSrc, &notIll,
		&pnCell, &pnExt, &pnCanon,
		&corrected, &pnMethod, &sim, &review, &note,
		&p.RowKind, &p.NomLevel, &nomClean, &parentID, &attachedID,
		&nom, &eff, &units,
		&p.SourcePDF,
		&figLabel, &dateText,
	)
	if err != nil {
		return p, err
	}
	p.MetaDataRaw = metaRaw.String
	p.FigureCode = figCode.String
	p.FigItemRaw = figRaw.String
	p.FigItemNo = figNo.String
	p.FigItemNoSource = figSrc.String
	p.NotIllustrated = notIll != 0
	p.PartNumberCell = pnCell.String
	p.PartNumberExtracted = pnExt.String
	p.PartNumberCanonical = pnCanon.String
	p.PNCorrected = corrected != 0
	p.PNMethod = pnMethod.String
	p.PNBestSimilarity = sim.Float64
	p.PNNeedsReview = review != 0
	p.CorrectionNote = note.String
	p.NomenclatureClean = nomClean.String
	p.ParentPartID = parentID.Int64
	p.AttachedToPartID = attachedID.Int64
	p.Nomenclature = nom.String
	p.Effectivity = eff.String
	p.UnitsPerAssy = units.String
	p.FigureLabel = figLabel.String
	p.DateText = dateText.String
	return p, nil
}

func (s *Store) fetchPart(partID int64) (model.Part, error) {
	rows, err := s.ro.Query(partQuery, partID)
	if err != nil {
		return model.Part{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return model.Part{}, err
		}
		return model.Part{}, model.ErrNotFound
	}
	return scanPart(rows)
}

// GetPart fetches one part row by id.
func (s *Store) GetPart(partID int64) (model.Part, error) {
	return s.fetchPart(partID)
}

const maxAncestorDepth = 12

// GetPartDetail fetches one part with its ancestor chain, siblings, children
// and cross-references.
func (s *Store) GetPartDetail(partID int64) (model.PartDetail, error) {
	part, err := s.fetchPart(partID)
	if err != nil {
		return model.PartDetail{}, err
	}
	detail := model.PartDetail{Part: part}

	// Ancestor chain, root first. Cycle-guarded.
	seen := map[int64]bool{partID: true}
	parentID := part.ParentPartID
	for depth := 0; parentID != 0 && depth < maxAncestorDepth && !seen[parentID]; depth++ {
		parent, err := s.fetchPart(parentID)
		if err == model.ErrNotFound {
			break
		}
		if err != nil {
			return model.PartDetail{}, err
		}
		detail.Parents = append(detail.Parents, parent)
		seen[parentID] = true
		parentID = parent.ParentPartID
	}
	for i, j := 0, len(detail.Parents)-1; i < j; i, j = i+1, j-1 {
		detail.Parents[i], detail.Parents[j] = detail.Parents[j], detail.Parents[i]
	}

	if part.ParentPartID != 0 {
		siblings, err := s.partsWhere(
			"p.parent_part_id = ? AND p.nom_level = ? AND p.id != ? ORDER BY p.id LIMIT 20",
			part.ParentPartID, part.NomLevel, part.ID,
		)
		if err != nil {
			return model.PartDetail{}, err
		}
		detail.Siblings = siblings
	}

	children, err := s.partsWhere("p.parent_part_id = ? ORDER BY p.id LIMIT 40", part.ID)
	if err != nil {
		return model.PartDetail{}, err
	}
	detail.Children = children

	xrows, err := s.ro.Query(
		"SELECT kind, target FROM xrefs WHERE part_id = ? ORDER BY kind, target", partID,
	)
	if err != nil {
		return model.PartDetail{}, err
	}
	defer xrows.Close()
	for xrows.Next() {
		var x model.XRef
		if err := xrows.Scan(&x.Kind, &x.Target); err != nil {
			return model.PartDetail{}, err
		}
		detail.XRefs = append(detail.XRefs, x)
	}
	return detail, xrows.Err()
}

func (s *Store) partsWhere(clause string, args ...any) ([]model.Part, error) {
	query := `
	SELECT` + partCols + `
	FROM parts p
	JOIN documents d ON d.id = p.document_id
	LEFT JOIN pages pg ON pg.document_id = p.document_id AND pg.page_num = p.page_num
	WHERE ` + clause

	rows, err := s.ro.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DocTree builds the folder/document tree from the ingested relative paths.
func (s *Store) DocTree() ([]model.DocTreeNode, error) {
	docs, err := s.ListDocuments()
	if err != nil {
		return nil, err
	}
	return buildTree(docs, ""), nil
}

func buildTree(docs []model.Document, prefix string) []model.DocTreeNode {
	type group struct {
		dirs  map[string][]model.Document
		files []model.Document
	}
	g := group{dirs: map[string][]model.Document{}}

	for _, doc := range docs {
		rest := doc.RelativePath
		if prefix != "" {
			rest = strings.TrimPrefix(rest, prefix+"/")
		}
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			dir := rest[:i]
			g.dirs[dir] = append(g.dirs[dir], doc)
		} else {
			g.files = append(g.files, doc)
		}
	}

	dirNames := make([]string, 0, len(g.dirs))
	for name := range g.dirs {
		dirNames = append(dirNames, name)
	}
	sort.Strings(dirNames)

	var out []model.DocTreeNode
	for _, name := range dirNames {
		dirPath := name
		if prefix != "" {
			dirPath = prefix + "/" + name
		}
		out = append(out, model.DocTreeNode{
			Name:         name,
			RelativePath: dirPath,
			IsDir:        true,
			Children:     buildTree(g.dirs[name], dirPath),
		})
	}
	for _, doc := range g.files {
		out = append(out, model.DocTreeNode{
			Name:         doc.PDFName,
			RelativePath: doc.RelativePath,
			IsDir:        false,
		})
	}
	return out
}
