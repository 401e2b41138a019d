// Package sqlite persists named scene snapshots in a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	errs "scene-engine/internal/errors"
	"scene-engine/internal/scene"
)

//go:embed schema.sql
var schema string

// Entry describes one saved scene.
type Entry struct {
	Name      string
	Entities  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store is a named snapshot store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errs.New(errs.CodeInvalidArgument, "storage path is required")
	}
	clean := filepath.Clean(path)
	if dir := filepath.Dir(clean); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errs.Wrap(errs.CodeUnknown, err, "create storage dir")
		}
	}
	db, err := sql.Open("sqlite", clean+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errs.Wrap(errs.CodeUnknown, err, "open sqlite db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.CodeUnknown, err, "ping sqlite db")
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.CodeUnknown, err, "apply schema")
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Save stores a snapshot document under name, replacing any earlier one.
// The document must decode as a valid scene.
func (s *Store) Save(ctx context.Context, name string, document []byte) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errs.New(errs.CodeInvalidArgument, "scene name is required")
	}
	check := scene.New()
	if err := check.LoadJSON(document); err != nil {
		return err
	}
	var count struct {
		Entities []json.RawMessage `json:"entities"`
	}
	if err := json.Unmarshal(document, &count); err != nil {
		return errs.Wrap(errs.CodeInvalidArgument, err, "decode snapshot")
	}

	now := toMillis(s.now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scenes (name, document, entities, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   document = excluded.document,
		   entities = excluded.entities,
		   updated_at = excluded.updated_at`,
		name, document, len(count.Entities), now, now,
	)
	if err != nil {
		return errs.Wrap(errs.CodeUnknown, err, "save scene").With("name", name)
	}
	return nil
}

// Load returns the snapshot document saved under name.
func (s *Store) Load(ctx context.Context, name string) ([]byte, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `SELECT document FROM scenes WHERE name = ?`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.CodeNotFound, "scene %q not found", name).With("name", name)
	}
	if err != nil {
		return nil, errs.Wrap(errs.CodeUnknown, err, "load scene").With("name", name)
	}
	return doc, nil
}

// List returns every saved scene ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, entities, created_at, updated_at FROM scenes ORDER BY name`)
	if err != nil {
		return nil, errs.Wrap(errs.CodeUnknown, err, "list scenes")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                Entry
			created, updated int64
		)
		if err := rows.Scan(&e.Name, &e.Entities, &created, &updated); err != nil {
			return nil, errs.Wrap(errs.CodeUnknown, err, "scan scene")
		}
		e.CreatedAt, e.UpdatedAt = fromMillis(created), fromMillis(updated)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.CodeUnknown, err, "list scenes")
	}
	return out, nil
}

// Delete removes the scene saved under name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scenes WHERE name = ?`, name)
	if err != nil {
		return errs.Wrap(errs.CodeUnknown, err, "delete scene").With("name", name)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.New(errs.CodeNotFound, "scene %q not found", name).With("name", name)
	}
	return nil
}
