package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rendis/bpmnforms/pkg/schema"
)

// BundleSummary is the listing view of a stored bundle.
type BundleSummary struct {
	ID          string    `json:"id"`
	ServiceName string    `json:"service_name"`
	GeneratedAt time.Time `json:"generated_at"`
	FormCount   int       `json:"form_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// BundleFilter narrows ListBundles.
type BundleFilter struct {
	ServiceName string
	Since       *time.Time
	Limit       int
	Offset      int
}

// CatalogEntry is the stored description and references of one step.
type CatalogEntry struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	References  []schema.Reference `json:"references,omitempty" yaml:"references,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at" yaml:"-"`
}

// Details converts the entry into step details.
func (e *CatalogEntry) Details() schema.StepDetails {
	return schema.StepDetails{Description: e.Description, References: e.References}
}

// CatalogKey normalizes a step name for catalog lookups: trimmed, lower
// case, inner whitespace collapsed.
func CatalogKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Event types recorded in the bundle event log.
const (
	EventBundleGenerated = "bundle.generated"
	EventBundleVerified  = "bundle.verified"
	EventBundleExported  = "bundle.exported"
)

// Event is an immutable entry in a bundle's event log.
type Event struct {
	ID        int64           `json:"id"`
	BundleID  string          `json:"bundle_id"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}
