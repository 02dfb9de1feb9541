package annotate

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Index is a SQLite catalogue of written annotations, so a dataset built over
// several runs can be queried by object type or image.
type Index struct {
	db *sql.DB
}

// IndexedEntry is one row of the index.
type IndexedEntry struct {
	Image  string
	RunID  string
	Name   string
	Type   string
	BBox   [4]int
	Pixels int
}

// OpenIndex opens or creates the index database at path.
func OpenIndex(path string) (*Index, error) {
	if path == "" {
		return nil, fmt.Errorf("empty index path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := initIndex(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

func initIndex(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS annotations (
			image TEXT NOT NULL,
			name TEXT NOT NULL,
			run_id TEXT NOT NULL,
			type TEXT NOT NULL,
			bbox_json TEXT NOT NULL,
			pixels INTEGER NOT NULL,
			PRIMARY KEY (image, name)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_annotations_type ON annotations(type, image);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("init index: %w", err)
		}
	}
	return nil
}

// Close releases the database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Record stores every entry of w. Rerunning an image replaces its rows.
func (ix *Index) Record(ctx context.Context, w *Writer) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM annotations WHERE image = ?`, w.filename); err != nil {
		return err
	}
	for _, e := range w.entries {
		bbox, err := json.Marshal(e.BBox)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO annotations(image, name, run_id, type, bbox_json, pixels) VALUES(?, ?, ?, ?, ?, ?)`,
			w.filename, e.Name, w.runID, e.Type, string(bbox), len(e.SegmentationFill)/2)
		if err != nil {
			return fmt.Errorf("index %s/%s: %w", w.filename, e.Name, err)
		}
	}
	return tx.Commit()
}

// ByType returns the entries of one object type, ordered by image then name.
func (ix *Index) ByType(ctx context.Context, typ string) ([]IndexedEntry, error) {
	return ix.query(ctx, `WHERE type = ?`, typ)
}

// ByImage returns the entries of one image, ordered by name.
func (ix *Index) ByImage(ctx context.Context, image string) ([]IndexedEntry, error) {
	return ix.query(ctx, `WHERE image = ?`, image)
}

// CountByType returns the number of indexed objects per type.
func (ix *Index) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := ix.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM annotations GROUP BY type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

func (ix *Index) query(ctx context.Context, where string, arg any) ([]IndexedEntry, error) {
	rows, err := ix.db.QueryContext(ctx,
		`SELECT image, run_id, name, type, bbox_json, pixels FROM annotations `+where+` ORDER BY image, name`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IndexedEntry
	for rows.Next() {
		var e IndexedEntry
		var bbox string
		if err := rows.Scan(&e.Image, &e.RunID, &e.Name, &e.Type, &bbox, &e.Pixels); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(bbox), &e.BBox); err != nil {
			return nil, fmt.Errorf("bad bbox for %s/%s: %w", e.Image, e.Name, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
