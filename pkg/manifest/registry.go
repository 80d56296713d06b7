package manifest

import (
	"fmt"
	"sort"
)

// Registry is an immutable catalog of element manifests. It is built once at
// startup with NewRegistry and then shared by reference; every method is a
// read-only query, so a Registry is safe for concurrent use.
//
// Lookups on unknown ids return nil or zero values rather than errors.
// Absence is routine here: tool compositions under iterative authoring
// regularly reference elements that do not exist yet.
type Registry struct {
	elements []*ElementManifest          // definition order, preserved by ByTier etc.
	byID     map[string]*ElementManifest // canonical id -> manifest
	aliases  map[string]string           // alias -> canonical id
}

// NewRegistry builds a registry from the given manifests.
//
// Construction fails fast on any violation of the catalog invariants:
// duplicate element ids, an alias colliding with another alias or with a
// canonical id, or an individually invalid manifest. These are authoring
// errors in the catalog itself, so they surface at build time rather than
// as ambiguous lookups later.
func NewRegistry(elements ...*ElementManifest) (*Registry, error) {
	r := &Registry{
		elements: make([]*ElementManifest, 0, len(elements)),
		byID:     make(map[string]*ElementManifest, len(elements)),
		aliases:  make(map[string]string),
	}

	for _, m := range elements {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("invalid manifest: %w", err)
		}

		if _, exists := r.byID[m.ElementID]; exists {
			return nil, fmt.Errorf("duplicate element id: %q", m.ElementID)
		}

		r.elements = append(r.elements, m)
		r.byID[m.ElementID] = m
	}

	// Aliases are registered after all canonical ids so an alias can never
	// shadow an element defined later in the catalog.
	for _, m := range elements {
		for _, alias := range m.Aliases {
			if _, exists := r.byID[alias]; exists {
				return nil, fmt.Errorf("alias %q collides with element id", alias)
			}
			if target, exists := r.aliases[alias]; exists {
				return nil, fmt.Errorf("alias %q already resolves to %q", alias, target)
			}
			r.aliases[alias] = m.ElementID
		}
	}

	return r, nil
}

// MustNewRegistry is NewRegistry that panics on error. Intended for static
// catalogs wired at process startup, where a bad catalog is a programming
// error.
func MustNewRegistry(elements ...*ElementManifest) *Registry {
	r, err := NewRegistry(elements...)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve maps an id or alias to its canonical element id.
// Returns ("", false) when the id is unknown.
func (r *Registry) Resolve(elementID string) (string, bool) {
	if _, ok := r.byID[elementID]; ok {
		return elementID, true
	}
	if canonical, ok := r.aliases[elementID]; ok {
		return canonical, true
	}
	return "", false
}

// Get returns the manifest for a canonical id or alias, or nil when unknown.
func (r *Registry) Get(elementID string) *ElementManifest {
	canonical, ok := r.Resolve(elementID)
	if !ok {
		return nil
	}
	return r.byID[canonical]
}

// ByTier returns all elements of the given tier in definition order.
func (r *Registry) ByTier(tier Tier) []*ElementManifest {
	var out []*ElementManifest
	for _, m := range r.elements {
		if m.Tier == tier {
			out = append(out, m)
		}
	}
	return out
}

// StandaloneElements returns all elements that can be deployed without a
// parent composition, in definition order.
func (r *Registry) StandaloneElements() []*ElementManifest {
	var out []*ElementManifest
	for _, m := range r.elements {
		if m.CanBeStandalone {
			out = append(out, m)
		}
	}
	return out
}

// GeneratableElementIDs returns the canonical ids of all standalone-capable
// elements, in definition order.
func (r *Registry) GeneratableElementIDs() []string {
	var out []string
	for _, m := range r.StandaloneElements() {
		out = append(out, m.ElementID)
	}
	return out
}

// All returns every registered manifest in definition order.
func (r *Registry) All() []*ElementManifest {
	out := make([]*ElementManifest, len(r.elements))
	copy(out, r.elements)
	return out
}

// CanBeStandalone reports whether the element can be deployed standalone.
// Unknown element ids report false, the same as an explicit false - callers
// that need to distinguish the two must Get the manifest first.
func (r *Registry) CanBeStandalone(elementID string) bool {
	m := r.Get(elementID)
	return m != nil && m.CanBeStandalone
}

// DeclaresAction reports whether the element's manifest declares the given
// execute action. Unknown element ids report false.
func (r *Registry) DeclaresAction(elementID, actionID string) bool {
	m := r.Get(elementID)
	if m == nil {
		return false
	}
	for _, a := range m.ExecuteActions {
		if a == actionID {
			return true
		}
	}
	return false
}

// ConnectionRequirements returns the element's connection requirements, or
// nil when the element is context-free or unknown.
func (r *Registry) ConnectionRequirements(elementID string) *ConnectionRequirements {
	m := r.Get(elementID)
	if m == nil {
		return nil
	}
	return m.ConnectionRequirements
}

// ValidateRequiredConfig walks the element's required config and reports the
// fields the supplied config fails to satisfy.
//
// A field is satisfied when the supplied config carries a non-nil,
// non-empty-string value for it, or when the field descriptor declares a
// default. Defaults satisfying required fields is deliberate leniency:
// a required field with a default is "required to exist somehow", not
// "required to be explicitly supplied".
//
// An unknown element id reports {Valid: false, MissingFields:
// [UnknownElementSentinel]} so batch validation can keep going.
func (r *Registry) ValidateRequiredConfig(elementID string, config map[string]any) ValidationResult {
	m := r.Get(elementID)
	if m == nil {
		return ValidationResult{Valid: false, MissingFields: []string{UnknownElementSentinel}}
	}

	var missing []string
	for name, field := range m.RequiredConfig {
		if field.Default != nil {
			continue
		}
		if configValuePresent(config, name) {
			continue
		}
		missing = append(missing, name)
	}

	if len(missing) > 0 {
		// RequiredConfig is a map; sort for a stable report.
		sort.Strings(missing)
		return ValidationResult{Valid: false, MissingFields: missing}
	}
	return ValidationResult{Valid: true}
}

// configValuePresent reports whether the config carries a usable value for
// the field: present, non-nil, and not an empty string.
func configValuePresent(config map[string]any, name string) bool {
	value, ok := config[name]
	if !ok || value == nil {
		return false
	}
	if s, isString := value.(string); isString && s == "" {
		return false
	}
	return true
}
