package store

import (
	"context"
	"time"

	"github.com/rendis/bpmnforms/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Bundles
	SaveBundle(ctx context.Context, b *schema.Bundle) error
	GetBundle(ctx context.Context, id string) (*schema.Bundle, error)
	ListBundles(ctx context.Context, filter BundleFilter) ([]*BundleSummary, error)
	DeleteBundle(ctx context.Context, id string) error
	DeleteBundlesBefore(ctx context.Context, before time.Time) (int64, error)

	// Step catalog
	CatalogReader
	UpsertCatalogEntry(ctx context.Context, entry *CatalogEntry) error
	ListCatalogEntries(ctx context.Context) ([]*CatalogEntry, error)
	DeleteCatalogEntry(ctx context.Context, name string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CatalogReader looks up catalog entries by step name.
type CatalogReader interface {
	GetCatalogEntry(ctx context.Context, name string) (*CatalogEntry, error)
}
