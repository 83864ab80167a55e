package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/bpmnforms/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB (used by the event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Bundles ---

// SaveBundle stores a bundle and its forms. Saving an existing id replaces it.
func (s *LibSQLStore) SaveBundle(ctx context.Context, b *schema.Bundle) error {
	if b == nil || b.ID == "" {
		return schema.NewError(schema.ErrCodeStore, "bundle id is required")
	}
	manifest, err := json.Marshal(b.Manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save bundle: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bundle_forms WHERE bundle_id = ?`, b.ID); err != nil {
		return fmt.Errorf("clear bundle forms: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO bundles (id, service_name, generated_at, graph, manifest, form_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET service_name=excluded.service_name, generated_at=excluded.generated_at,
		   graph=excluded.graph, manifest=excluded.manifest, form_count=excluded.form_count`,
		b.ID, b.ServiceName, timeOrNow(b.GeneratedAt), b.Graph, string(manifest), len(b.Forms), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert bundle: %w", err)
	}

	for i, f := range b.Forms {
		doc, err := json.Marshal(f.Document)
		if err != nil {
			return fmt.Errorf("marshal form %s: %w", f.Filename, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO bundle_forms (bundle_id, position, node_id, name, filename, form_id, checksum, document)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, i, f.NodeID, f.Name, f.Filename, f.FormID, checksumAt(b.Manifest, i), string(doc),
		)
		if err != nil {
			return fmt.Errorf("insert form %s: %w", f.Filename, err)
		}
	}

	return tx.Commit()
}

func checksumAt(m schema.Manifest, i int) string {
	if i < len(m.Forms) {
		return m.Forms[i].Checksum
	}
	return ""
}

// GetBundle loads a bundle with its forms.
func (s *LibSQLStore) GetBundle(ctx context.Context, id string) (*schema.Bundle, error) {
	b := &schema.Bundle{}
	var manifest string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, service_name, generated_at, graph, manifest FROM bundles WHERE id = ?`, id,
	).Scan(&b.ID, &b.ServiceName, &b.GeneratedAt, &b.Graph, &manifest)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("bundle", id)
	}
	if err != nil {
		return nil, err
	}
	b.GeneratedAt = b.GeneratedAt.UTC()
	if err := json.Unmarshal([]byte(manifest), &b.Manifest); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, name, filename, form_id, document FROM bundle_forms
		 WHERE bundle_id = ? ORDER BY position ASC`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var f schema.GeneratedForm
		var doc string
		if err := rows.Scan(&f.NodeID, &f.Name, &f.Filename, &f.FormID, &doc); err != nil {
			return nil, err
		}
		form, err := schema.ParseForm([]byte(doc))
		if err != nil {
			return nil, fmt.Errorf("form %s: %w", f.Filename, err)
		}
		f.Document = form
		b.Forms = append(b.Forms, f)
	}
	return b, rows.Err()
}

// ListBundles returns bundle summaries, newest first.
func (s *LibSQLStore) ListBundles(ctx context.Context, filter BundleFilter) ([]*BundleSummary, error) {
	var where []string
	var args []any

	if filter.ServiceName != "" {
		where = append(where, "service_name = ?")
		args = append(args, filter.ServiceName)
	}
	if filter.Since != nil {
		where = append(where, "generated_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `SELECT id, service_name, generated_at, form_count, created_at FROM bundles`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY generated_at DESC, id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*BundleSummary
	for rows.Next() {
		b := &BundleSummary{}
		if err := rows.Scan(&b.ID, &b.ServiceName, &b.GeneratedAt, &b.FormCount, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.GeneratedAt = b.GeneratedAt.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBundle removes a bundle, its forms and its events.
func (s *LibSQLStore) DeleteBundle(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete bundle: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bundle_forms WHERE bundle_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bundle_events WHERE bundle_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM bundles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res, "bundle", id); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteBundlesBefore removes every bundle generated before the cutoff and
// returns how many were removed.
func (s *LibSQLStore) DeleteBundlesBefore(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune: %w", err)
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM bundles WHERE generated_at < ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM bundle_forms WHERE bundle_id IN (`+stale+`)`, before); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bundle_events WHERE bundle_id IN (`+stale+`)`, before); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM bundles WHERE generated_at < ?`, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// --- Step catalog ---

// UpsertCatalogEntry inserts or replaces the entry for entry.Name.
func (s *LibSQLStore) UpsertCatalogEntry(ctx context.Context, entry *CatalogEntry) error {
	key := CatalogKey(entry.Name)
	if key == "" {
		return schema.NewError(schema.ErrCodeStore, "catalog entry name is required")
	}
	refs, err := marshalSliceOrDefault(entry.References)
	if err != nil {
		return fmt.Errorf("marshal references: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO step_catalog (key, name, description, refs, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET name=excluded.name, description=excluded.description,
		   refs=excluded.refs, updated_at=excluded.updated_at`,
		key, strings.TrimSpace(entry.Name), entry.Description, string(refs), timeOrNow(entry.UpdatedAt),
	)
	return err
}

// GetCatalogEntry looks up an entry by step name (case and spacing
// insensitive).
func (s *LibSQLStore) GetCatalogEntry(ctx context.Context, name string) (*CatalogEntry, error) {
	e := &CatalogEntry{}
	var refs string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, description, refs, updated_at FROM step_catalog WHERE key = ?`, CatalogKey(name),
	).Scan(&e.Name, &e.Description, &refs, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("catalog entry", name)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(refs), &e.References); err != nil {
		return nil, fmt.Errorf("unmarshal references: %w", err)
	}
	return e, nil
}

// ListCatalogEntries returns every entry ordered by key.
func (s *LibSQLStore) ListCatalogEntries(ctx context.Context) ([]*CatalogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, refs, updated_at FROM step_catalog ORDER BY key ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*CatalogEntry
	for rows.Next() {
		e := &CatalogEntry{}
		var refs string
		if err := rows.Scan(&e.Name, &e.Description, &refs, &e.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(refs), &e.References); err != nil {
			return nil, fmt.Errorf("unmarshal references for %q: %w", e.Name, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteCatalogEntry removes the entry for name.
func (s *LibSQLStore) DeleteCatalogEntry(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM step_catalog WHERE key = ?`, CatalogKey(name))
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "catalog entry", name)
}

// --- Events ---

func (s *LibSQLStore) listEvents(ctx context.Context, bundleID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bundle_id, event_type, payload, timestamp, sequence FROM bundle_events
		 WHERE bundle_id = ? ORDER BY sequence ASC`, bundleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.BundleID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

func storeNotFound(resource, id string) *schema.Error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullRaw(r json.RawMessage) any {
	if len(r) == 0 {
		return nil
	}
	return string(r)
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func marshalSliceOrDefault(refs []schema.Reference) (json.RawMessage, error) {
	if len(refs) == 0 {
		return json.RawMessage("[]"), nil
	}
	return json.Marshal(refs)
}

var _ Store = (*LibSQLStore)(nil)
