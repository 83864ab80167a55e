package schema

import "time"

// Reference is a named link shown in a generated form.
type Reference struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// StepDetails is the enrichment resolved for one process step.
type StepDetails struct {
	Description string      `json:"step_description"`
	References  []Reference `json:"references,omitempty"`
}

// GeneratedForm is a materialized template bound to one graph node.
type GeneratedForm struct {
	NodeID   string `json:"node_id"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
	FormID   string `json:"form_id"`
	Document *Form  `json:"document"`
}

// ManifestEntry describes one generated form inside a bundle.
type ManifestEntry struct {
	NodeID   string `json:"node_id"`
	Name     string `json:"name"`
	Filename string `json:"filename"`
	FormID   string `json:"form_id"`
	Checksum string `json:"checksum,omitempty"`
}

// Manifest lists what a generation pass produced.
type Manifest struct {
	BundleID    string          `json:"bundle_id"`
	Service     string          `json:"service"`
	GeneratedAt time.Time       `json:"generated_at"`
	Forms       []ManifestEntry `json:"forms"`
}

// Bundle is the complete output of one generation pass. It is not modified
// after assembly.
type Bundle struct {
	ID          string          `json:"id"`
	ServiceName string          `json:"service_name"`
	GeneratedAt time.Time       `json:"generated_at"`
	Graph       string          `json:"graph"`
	Forms       []GeneratedForm `json:"forms"`
	Manifest    Manifest        `json:"manifest"`
}

// Form returns the generated form bound to nodeID, or nil.
func (b *Bundle) Form(nodeID string) *GeneratedForm {
	for i := range b.Forms {
		if b.Forms[i].NodeID == nodeID {
			return &b.Forms[i]
		}
	}
	return nil
}
