package manifest

import "fmt"

// ElementManifest describes one composable widget type: the configuration it
// needs, the context it requires before it can render, and the state buckets
// it reads and writes. Manifests are static catalog data - they are defined
// once at registry construction and never mutated afterwards.
type ElementManifest struct {
	ElementID string   `json:"element_id"` // Canonical identifier, unique within a registry
	Aliases   []string `json:"aliases,omitempty"`

	Tier       Tier       `json:"tier"`        // Context level the element requires
	Category   Category   `json:"category"`    // Broad behavioural grouping
	DataSource DataSource `json:"data_source"` // External feed the element renders, or none

	RequiredConfig map[string]ConfigField `json:"required_config,omitempty"`
	OptionalConfig map[string]ConfigField `json:"optional_config,omitempty"`

	// ConnectionRequirements declares the contextual identifiers that must be
	// supplied before the element renders meaningfully. Nil means the element
	// is context-free, which forces Tier == TierUniversal.
	ConnectionRequirements *ConnectionRequirements `json:"connection_requirements,omitempty"`

	// ExecuteActions is the set of action names the element may invoke
	// against shared or personal state through the bridge.
	ExecuteActions []string `json:"execute_actions,omitempty"`

	// StateShape scopes synchronization: the coarse bucket names the element
	// reads and writes in the shared and personal state maps.
	StateShape StateShape `json:"state_shape"`

	// CanBeStandalone reports whether the element can be deployed on its own,
	// without a parent composition feeding its inputs.
	CanBeStandalone bool `json:"can_be_standalone"`
}

// Tier is the permission/context level an element requires.
type Tier string

const (
	// TierUniversal elements need no context and work anywhere.
	TierUniversal Tier = "universal"

	// TierConnected elements need campus-level context.
	TierConnected Tier = "connected"

	// TierSpace elements need space-leader context.
	TierSpace Tier = "space"
)

// Category is the broad behavioural grouping of an element.
type Category string

const (
	CategoryAction  Category = "action"
	CategoryDisplay Category = "display"
	CategoryInput   Category = "input"
	CategoryFilter  Category = "filter"
	CategoryLayout  Category = "layout"
)

// DataSource names the external data feed an element renders.
type DataSource string

const (
	DataSourceNone    DataSource = "none"
	DataSourceEvents  DataSource = "events"
	DataSourceMembers DataSource = "members"
	DataSourceSpaces  DataSource = "spaces"
	DataSourcePosts   DataSource = "posts"
)

// FieldType is the value type of a configuration field.
type FieldType string

const (
	FieldTypeString             FieldType = "string"
	FieldTypeNumber             FieldType = "number"
	FieldTypeBoolean            FieldType = "boolean"
	FieldTypeStringList         FieldType = "string-list"
	FieldTypeObjectList         FieldType = "object-list"
	FieldTypeStringListOrString FieldType = "string-list-or-string"
)

// ConfigField describes one configuration field of an element.
type ConfigField struct {
	Type        FieldType `json:"type"`
	Description string    `json:"description"`
	Default     any       `json:"default,omitempty"` // Non-nil defaults satisfy required fields
}

// ConnectionRequirements declares what contextual identifiers an element needs
// before it can render. RequiredContextKeys name keys in the block context
// (e.g. "spaceId", "campusId", "userId").
type ConnectionRequirements struct {
	ConnectionType      string   `json:"connection_type"`
	RequiredContextKeys []string `json:"required_context_keys"`
}

// StateShape names the state buckets an element touches, split by scope.
// Shared buckets are visible to every viewer of a deployment; personal
// buckets are scoped to the acting user.
type StateShape struct {
	Shared   []string `json:"shared,omitempty"`
	Personal []string `json:"personal,omitempty"`
}

// UnknownElementSentinel is reported in ValidationResult.MissingFields when
// the element id itself does not resolve. Batch validators rely on it to
// report bad references without aborting the whole batch.
const UnknownElementSentinel = "UNKNOWN_ELEMENT"

// ValidationResult is the outcome of validating a supplied configuration
// against an element's required config.
type ValidationResult struct {
	Valid         bool     `json:"valid"`
	MissingFields []string `json:"missing_fields,omitempty"`
}

// Validate checks if the Tier is a valid enum value.
func (t Tier) Validate() error {
	switch t {
	case TierUniversal, TierConnected, TierSpace:
		return nil
	default:
		return fmt.Errorf("unknown tier: %q", t)
	}
}

// Validate checks if the Category is a valid enum value.
func (c Category) Validate() error {
	switch c {
	case CategoryAction, CategoryDisplay, CategoryInput, CategoryFilter, CategoryLayout:
		return nil
	default:
		return fmt.Errorf("unknown category: %q", c)
	}
}

// Validate checks if the DataSource is a valid enum value.
func (ds DataSource) Validate() error {
	switch ds {
	case DataSourceNone, DataSourceEvents, DataSourceMembers, DataSourceSpaces, DataSourcePosts:
		return nil
	default:
		return fmt.Errorf("unknown data source: %q", ds)
	}
}

// Validate checks if the FieldType is a valid enum value.
func (ft FieldType) Validate() error {
	switch ft {
	case FieldTypeString, FieldTypeNumber, FieldTypeBoolean,
		FieldTypeStringList, FieldTypeObjectList, FieldTypeStringListOrString:
		return nil
	default:
		return fmt.Errorf("unknown field type: %q", ft)
	}
}

// Validate checks the manifest's own field values. It enforces the structural
// invariants that hold for every element: a non-empty id, valid enum values,
// valid config field types, and the rule that context-free elements
// (ConnectionRequirements == nil) must be universal tier.
func (m *ElementManifest) Validate() error {
	if m.ElementID == "" {
		return fmt.Errorf("element id cannot be empty")
	}

	if err := m.Tier.Validate(); err != nil {
		return fmt.Errorf("element %q: %w", m.ElementID, err)
	}

	if err := m.Category.Validate(); err != nil {
		return fmt.Errorf("element %q: %w", m.ElementID, err)
	}

	if err := m.DataSource.Validate(); err != nil {
		return fmt.Errorf("element %q: %w", m.ElementID, err)
	}

	for name, field := range m.RequiredConfig {
		if err := field.Type.Validate(); err != nil {
			return fmt.Errorf("element %q: required config %q: %w", m.ElementID, name, err)
		}
	}
	for name, field := range m.OptionalConfig {
		if err := field.Type.Validate(); err != nil {
			return fmt.Errorf("element %q: optional config %q: %w", m.ElementID, name, err)
		}
	}

	if m.ConnectionRequirements == nil && m.Tier != TierUniversal {
		return fmt.Errorf("element %q: tier %q requires connection requirements", m.ElementID, m.Tier)
	}

	if m.ConnectionRequirements != nil && len(m.ConnectionRequirements.RequiredContextKeys) == 0 {
		return fmt.Errorf("element %q: connection requirements must name at least one context key", m.ElementID)
	}

	return nil
}
