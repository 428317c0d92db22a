package store

import (
	"database/sql"
	"time"

	"github.com/xuyicheng33/IPC-QUERY/model"
)

// ScanEntry is one file fingerprint observed during a directory walk.
type ScanEntry struct {
	RelativePath string
	Size         int64
	MTime        float64
}

// ListScanStates returns the persisted fingerprints, optionally restricted to
// a directory prefix (no trailing slash).
func (s *Store) ListScanStates(prefix string) ([]model.ScanState, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if prefix != "" {
		rows, err = s.ro.Query(
			"SELECT relative_path, size, mtime, content_hash, updated_at FROM scan_state WHERE relative_path = ? OR relative_path LIKE ?",
			prefix, prefix+"/%",
		)
	} else {
		rows, err = s.ro.Query("SELECT relative_path, size, mtime, content_hash, updated_at FROM scan_state")
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScanState
	for rows.Next() {
		var (
			st   model.ScanState
			hash sql.NullString
		)
		if err := rows.Scan(&st.RelativePath, &st.Size, &st.MTime, &hash, &st.UpdatedAt); err != nil {
			return nil, err
		}
		st.ContentHash = hash.String
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpsertScanStates records the fingerprints of all files seen by a scan.
func (s *Store) UpsertScanStates(entries []ScanEntry) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return s.withWrite(func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, e := range entries {
			_, err := tx.Exec(`
				INSERT INTO scan_state(relative_path, size, mtime, content_hash, updated_at)
				VALUES (?, ?, ?, NULL, ?)
				ON CONFLICT(relative_path) DO UPDATE SET
				  size = excluded.size,
				  mtime = excluded.mtime,
				  updated_at = excluded.updated_at`,
				e.RelativePath, e.Size, e.MTime, now,
			)
			if err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

// DeleteVanished removes the Document rows (cascading) and ScanState rows for
// relative paths whose files no longer exist on disk. It returns how many
// documents were deleted.
func (s *Store) DeleteVanished(relPaths []string) (int, error) {
	if len(relPaths) == 0 {
		return 0, nil
	}
	deleted := 0
	err := s.withWrite(func(db *sql.DB) error {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		for _, rel := range relPaths {
			res, err := tx.Exec("DELETE FROM documents WHERE relative_path = ?", rel)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				deleted += int(n)
			}
			if _, err := tx.Exec("DELETE FROM scan_state WHERE relative_path = ?", rel); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	return deleted, err
}
