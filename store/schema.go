package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/xuyicheng33/IPC-QUERY/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
  id INTEGER PRIMARY KEY,
  pdf_name TEXT NOT NULL,
  relative_path TEXT NOT NULL,
  pdf_path TEXT NOT NULL,
  miner_dir TEXT NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS pages (
  id INTEGER PRIMARY KEY,
  document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
  page_num INTEGER NOT NULL,
  figure_code TEXT,
  figure_label TEXT,
  date_text TEXT,
  page_token TEXT,
  rf_text TEXT
);

CREATE TABLE IF NOT EXISTS parts (
  id INTEGER PRIMARY KEY,
  document_id INTEGER NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
  page_num INTEGER NOT NULL,
  page_end INTEGER NOT NULL,
  extractor TEXT NOT NULL,
  meta_data_raw TEXT,
  figure_code TEXT,
  fig_item_raw TEXT,
  fig_item_no TEXT,
  fig_item_no_source TEXT,
  not_illustrated INTEGER NOT NULL DEFAULT 0,
  part_number_cell TEXT,
  part_number_extracted TEXT,
  part_number_canonical TEXT,
  pn_corrected INTEGER NOT NULL DEFAULT 0,
  pn_method TEXT,
  pn_best_similarity REAL,
  pn_needs_review INTEGER NOT NULL DEFAULT 0,
  correction_note TEXT,
  row_kind TEXT NOT NULL,
  nom_level INTEGER NOT NULL DEFAULT 0,
  nomenclature_clean TEXT,
  parent_part_id INTEGER,
  attached_to_part_id INTEGER,
  nomenclature TEXT,
  effectivity TEXT,
  units_per_assy TEXT,
  miner_table_img_path TEXT
);

CREATE TABLE IF NOT EXISTS xrefs (
  id INTEGER PRIMARY KEY,
  part_id INTEGER NOT NULL REFERENCES parts(id) ON DELETE CASCADE,
  kind TEXT NOT NULL,
  target TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS aliases (
  id INTEGER PRIMARY KEY,
  part_id INTEGER NOT NULL REFERENCES parts(id) ON DELETE CASCADE,
  alias_type TEXT NOT NULL DEFAULT '',
  alias_value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scan_state (
  relative_path TEXT PRIMARY KEY,
  size INTEGER NOT NULL,
  mtime REAL NOT NULL,
  content_hash TEXT,
  updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_parts_pn ON parts(part_number_canonical);
CREATE INDEX IF NOT EXISTS idx_parts_pn_extracted ON parts(part_number_extracted);
CREATE INDEX IF NOT EXISTS idx_parts_pn_cell ON parts(part_number_cell);
CREATE INDEX IF NOT EXISTS idx_parts_figure ON parts(figure_code);
CREATE INDEX IF NOT EXISTS idx_parts_doc_page ON parts(document_id, page_num);
CREATE INDEX IF NOT EXISTS idx_parts_parent ON parts(parent_part_id);
CREATE INDEX IF NOT EXISTS idx_parts_attached ON parts(attached_to_part_id);
CREATE INDEX IF NOT EXISTS idx_parts_nom_clean ON parts(nomenclature_clean);
CREATE INDEX IF NOT EXISTS idx_parts_nom_level ON parts(nom_level);
CREATE INDEX IF NOT EXISTS idx_pages_doc_page ON pages(document_id, page_num);
CREATE INDEX IF NOT EXISTS idx_xrefs_part ON xrefs(part_id);
CREATE INDEX IF NOT EXISTS idx_alias_value ON aliases(alias_value);
CREATE INDEX IF NOT EXISTS idx_alias_part ON aliases(part_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_relpath ON documents(relative_path);
CREATE UNIQUE INDEX IF NOT EXISTS idx_parts_row_unique ON parts(
  document_id,
  page_num,
  COALESCE(figure_code, ''),
  COALESCE(fig_item_raw, ''),
  COALESCE(fig_item_no, ''),
  not_illustrated,
  COALESCE(part_number_cell, ''),
  COALESCE(nomenclature_clean, ''),
  COALESCE(effectivity, ''),
  COALESCE(units_per_assy, ''),
  nom_level,
  COALESCE(parent_part_id, 0)
);
`

// EnsureSchema creates missing tables and indexes without touching existing
// data, migrating legacy databases first.
func EnsureSchema(db *sql.DB) error {
	if err := migrateRelativePath(db); err != nil {
		return err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// migrateRelativePath upgrades a legacy database whose documents were keyed
// by bare filename with a UNIQUE constraint on pdf_name. ADD COLUMN cannot
// drop a column constraint, so the table is rebuilt in the current shape with
// relative_path backfilled from pdf_name; otherwise the stale filename
// uniqueness would reject same-named files in different directories. If the
// backfill would produce duplicate relative paths the migration fails fast
// with the colliding values instead of silently dropping rows.
func migrateRelativePath(db *sql.DB) error {
	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='documents'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		return nil // fresh database
	}
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}

	hasRelPath, err := columnExists(db, "documents", "relative_path")
	if err != nil {
		return err
	}
	if hasRelPath {
		return nil
	}

	rows, err := db.Query(
		"SELECT pdf_name FROM documents GROUP BY pdf_name HAVING COUNT(1) > 1",
	)
	if err != nil {
		return fmt.Errorf("check migration duplicates: %w", err)
	}
	defer rows.Close()

	var dups []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return err
		}
		dups = append(dups, p)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(dups) > 0 {
		return model.Conflict(
			fmt.Sprintf("cannot migrate documents to relative_path identity: duplicate paths %s",
				strings.Join(dups, ", ")),
			dups...,
		)
	}

	// The rebuild drops documents while pages and parts still reference it,
	// so enforcement goes off for the duration. The write pool holds a
	// single connection, so the pragma covers the statements below.
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer db.Exec("PRAGMA foreign_keys=ON")

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`CREATE TABLE documents_migrated (
  id INTEGER PRIMARY KEY,
  pdf_name TEXT NOT NULL,
  relative_path TEXT NOT NULL,
  pdf_path TEXT NOT NULL,
  miner_dir TEXT NOT NULL,
  created_at TEXT NOT NULL
)`,
		`INSERT INTO documents_migrated (id, pdf_name, relative_path, pdf_path, miner_dir, created_at)
SELECT id, pdf_name, pdf_name, pdf_path, miner_dir, created_at FROM documents`,
		`DROP TABLE documents`,
		`ALTER TABLE documents_migrated RENAME TO documents`,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("rebuild documents table: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
