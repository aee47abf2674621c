package store

import (
	"fmt"
	"sort"

	"github.com/embedworks/monocle/pkg/oembed"
	"github.com/embedworks/monocle/pkg/urlglob"
)

// Record is one external provider's configuration.
type Record struct {
	Name         string   `yaml:"name"`
	APIEndpoint  string   `yaml:"api_endpoint"`
	ResourceType string   `yaml:"resource_type"`
	IsActive     bool     `yaml:"is_active"`
	Expose       bool     `yaml:"expose"`
	URLSchemes   []string `yaml:"url_schemes"`
}

// Validate checks the record is registrable: named, a known resource
// type, a plain-http endpoint and at least one sufficiently specific
// URL scheme.
func (r *Record) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("provider record requires a name")
	}
	if !oembed.KnownType(r.ResourceType) {
		return fmt.Errorf("provider %q has unknown resource type %q", r.Name, r.ResourceType)
	}
	if err := urlglob.ValidateEndpoint(r.APIEndpoint); err != nil {
		return fmt.Errorf("provider %q: %w", r.Name, err)
	}
	if len(r.URLSchemes) == 0 {
		return fmt.Errorf("provider %q has no url schemes", r.Name)
	}
	for _, scheme := range r.URLSchemes {
		if err := urlglob.ValidateScheme(scheme); err != nil {
			return fmt.Errorf("provider %q: %w", r.Name, err)
		}
	}
	return nil
}

// Equal reports whether two records carry the same configuration.
func (r Record) Equal(other Record) bool {
	if r.Name != other.Name ||
		r.APIEndpoint != other.APIEndpoint ||
		r.ResourceType != other.ResourceType ||
		r.IsActive != other.IsActive ||
		r.Expose != other.Expose ||
		len(r.URLSchemes) != len(other.URLSchemes) {
		return false
	}
	for i := range r.URLSchemes {
		if r.URLSchemes[i] != other.URLSchemes[i] {
			return false
		}
	}
	return true
}

// DiffRecords compares two record sets by name and returns the records
// to upsert (new or changed) and the names to remove. Output order is
// deterministic.
func DiffRecords(old, updated []Record) (upserts []Record, removals []string) {
	oldByName := make(map[string]Record, len(old))
	for _, r := range old {
		oldByName[r.Name] = r
	}

	seen := make(map[string]bool, len(updated))
	for _, r := range updated {
		seen[r.Name] = true
		if prev, ok := oldByName[r.Name]; !ok || !prev.Equal(r) {
			upserts = append(upserts, r)
		}
	}

	for name := range oldByName {
		if !seen[name] {
			removals = append(removals, name)
		}
	}

	sort.Slice(upserts, func(i, j int) bool { return upserts[i].Name < upserts[j].Name })
	sort.Strings(removals)
	return upserts, removals
}
