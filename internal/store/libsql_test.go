package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/bpmnforms/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func sampleBundle(id string, at time.Time) *schema.Bundle {
	doc := &schema.Form{
		ID:            "001-review-" + at.Format("20060102T150405Z"),
		Type:          "default",
		SchemaVersion: 16,
		Components: []*schema.Component{
			{ID: "Text_1", Type: "text", Text: "# Review"},
			{ID: "Field_nextTask", Type: "select", Key: "nextTask", Values: []schema.Option{{Label: "Approve", Value: "T2"}}},
		},
	}
	b := &schema.Bundle{
		ID:          id,
		ServiceName: "Permits",
		GeneratedAt: at,
		Graph:       `{"nodes":[],"edges":[]}`,
		Forms: []schema.GeneratedForm{
			{NodeID: "T1", Name: "Review", Filename: "001-review.form", FormID: doc.ID, Document: doc},
		},
	}
	b.Manifest = schema.Manifest{
		BundleID:    id,
		Service:     "Permits",
		GeneratedAt: at,
		Forms: []schema.ManifestEntry{
			{NodeID: "T1", Name: "Review", Filename: "001-review.form", FormID: doc.ID, Checksum: "abc"},
		},
	}
	return b
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	v, err := s.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestLoadMigrations(t *testing.T) {
	ms, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, 1, ms[0].Version)
	assert.Equal(t, "initial_schema", ms[0].Name)
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- only a comment;\nCREATE TABLE a (x INT);\n\n-- note\nCREATE TABLE b (y INT);")
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x INT)", stmts[0])
	assert.Contains(t, stmts[1], "CREATE TABLE b")
}

func TestSaveAndGetBundle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	b := sampleBundle("b-1", at)
	require.NoError(t, s.SaveBundle(ctx, b))

	got, err := s.GetBundle(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, "Permits", got.ServiceName)
	assert.True(t, at.Equal(got.GeneratedAt))
	assert.Equal(t, b.Graph, got.Graph)
	assert.Equal(t, b.Manifest.Forms, got.Manifest.Forms)
	require.Len(t, got.Forms, 1)
	assert.Equal(t, "001-review.form", got.Forms[0].Filename)
	assert.Equal(t, b.Forms[0].Document.ID, got.Forms[0].Document.ID)
	assert.Equal(t, "T2", got.Forms[0].Document.Components[1].Values[0].Value)
}

func TestSaveBundle_ReplacesExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	b := sampleBundle("b-1", at)
	require.NoError(t, s.SaveBundle(ctx, b))

	b.ServiceName = "Licences"
	b.Forms = append(b.Forms, schema.GeneratedForm{
		NodeID: "T2", Filename: "002-approve.form", FormID: "002-approve", Document: &schema.Form{ID: "002-approve"},
	})
	require.NoError(t, s.SaveBundle(ctx, b))

	got, err := s.GetBundle(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, "Licences", got.ServiceName)
	assert.Len(t, got.Forms, 2)

	list, err := s.ListBundles(ctx, BundleFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].FormCount)
}

func TestSaveBundle_RequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveBundle(context.Background(), &schema.Bundle{})
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
}

func TestGetBundle_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetBundle(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestListBundles_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		b := sampleBundle(id, base.Add(time.Duration(i)*24*time.Hour))
		if id == "c" {
			b.ServiceName = "Other"
		}
		require.NoError(t, s.SaveBundle(ctx, b))
	}

	all, err := s.ListBundles(ctx, BundleFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID, "newest first")

	permits, err := s.ListBundles(ctx, BundleFilter{ServiceName: "Permits"})
	require.NoError(t, err)
	assert.Len(t, permits, 2)

	since := base.Add(24 * time.Hour)
	recent, err := s.ListBundles(ctx, BundleFilter{Since: &since})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	page, err := s.ListBundles(ctx, BundleFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)
}

func TestDeleteBundle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveBundle(ctx, sampleBundle("b-1", time.Now().UTC())))

	require.NoError(t, s.DeleteBundle(ctx, "b-1"))
	_, err := s.GetBundle(ctx, "b-1")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))

	err = s.DeleteBundle(ctx, "b-1")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
}

func TestDeleteBundlesBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveBundle(ctx, sampleBundle("old-1", now.Add(-60*24*time.Hour))))
	require.NoError(t, s.SaveBundle(ctx, sampleBundle("old-2", now.Add(-31*24*time.Hour))))
	require.NoError(t, s.SaveBundle(ctx, sampleBundle("fresh", now.Add(-time.Hour))))

	n, err := s.DeleteBundlesBefore(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.ListBundles(ctx, BundleFilter{})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "fresh", left[0].ID)

	var forms int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM bundle_forms`).Scan(&forms))
	assert.Equal(t, 1, forms)
}

func TestCatalogCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &CatalogEntry{
		Name:        "Review Request",
		Description: "Check the request.",
		References:  []schema.Reference{{Name: "Policy", URL: "https://docs.example.com/policy"}},
	}
	require.NoError(t, s.UpsertCatalogEntry(ctx, entry))

	got, err := s.GetCatalogEntry(ctx, "  review   REQUEST ")
	require.NoError(t, err)
	assert.Equal(t, "Review Request", got.Name)
	assert.Equal(t, entry.References, got.References)
	assert.False(t, got.UpdatedAt.IsZero())

	entry.Description = "Check it twice."
	entry.References = nil
	require.NoError(t, s.UpsertCatalogEntry(ctx, entry))
	got, err = s.GetCatalogEntry(ctx, "review request")
	require.NoError(t, err)
	assert.Equal(t, "Check it twice.", got.Description)
	assert.Empty(t, got.References)

	require.NoError(t, s.UpsertCatalogEntry(ctx, &CatalogEntry{Name: "Approve"}))
	list, err := s.ListCatalogEntries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Approve", list[0].Name)

	require.NoError(t, s.DeleteCatalogEntry(ctx, "APPROVE"))
	_, err = s.GetCatalogEntry(ctx, "approve")
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))
	assert.True(t, schema.HasCode(s.DeleteCatalogEntry(ctx, "approve"), schema.ErrCodeNotFound))

	err = s.UpsertCatalogEntry(ctx, &CatalogEntry{Name: "   "})
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
}

func TestCatalogKey(t *testing.T) {
	assert.Equal(t, "review request", CatalogKey("  Review \t Request "))
	assert.Equal(t, "", CatalogKey("   "))
}
