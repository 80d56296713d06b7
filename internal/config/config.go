package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/hivelab/comb/pkg/manifest"
)

// CombConfig represents the top-level comb.yml configuration
type CombConfig struct {
	Version     string                   `yaml:"version"`
	Deployment  DeploymentConfig         `yaml:"deployment"`
	Elements    map[string]ElementConfig `yaml:"elements"`
	Connections []ConnectionConfig       `yaml:"connections,omitempty"`
	Redis       *RedisConfig             `yaml:"redis,omitempty"`
	Sandbox     *SandboxConfig           `yaml:"sandbox,omitempty"`
}

// DeploymentConfig identifies the deployment and its campus placement
type DeploymentConfig struct {
	Name     string `yaml:"name"`
	SpaceID  string `yaml:"space_id,omitempty"`
	CampusID string `yaml:"campus_id,omitempty"`
}

// ElementConfig represents a single element instance in the composition
type ElementConfig struct {
	Element string         `yaml:"element"` // Required: registry element id or alias
	Config  map[string]any `yaml:"config,omitempty"`
}

// ConnectionConfig declares a subscription to another deployment's mailbox
type ConnectionConfig struct {
	SourceDeployment string             `yaml:"source_deployment"`
	Enabled          *bool              `yaml:"enabled,omitempty"` // Default: true
	Targets          []ConnectionTarget `yaml:"targets"`
}

// ConnectionTarget routes one source state path into one element input
type ConnectionTarget struct {
	Element       string `yaml:"element"`        // Instance name from the elements map
	Input         string `yaml:"input"`          // Input path the value feeds
	SourceElement string `yaml:"source_element"` // Instance name in the source deployment
	SourcePath    string `yaml:"source_path"`    // Key in the source instance's shared state
}

// RedisConfig specifies the mailbox connection
type RedisConfig struct {
	URL string `yaml:"url,omitempty"` // Default: redis://localhost:6379
}

// SandboxConfig specifies how guest containers are run
type SandboxConfig struct {
	Image     string           `yaml:"image,omitempty"` // Default applied by the sandbox manager
	Resources *ResourcesConfig `yaml:"resources,omitempty"`
}

// ResourcesConfig specifies resource limits and reservations
type ResourcesConfig struct {
	Limits       *ResourceLimits `yaml:"limits,omitempty"`
	Reservations *ResourceLimits `yaml:"reservations,omitempty"`
}

// ResourceLimits specifies CPU and memory limits
type ResourceLimits struct {
	CPUs   string `yaml:"cpus,omitempty"`
	Memory string `yaml:"memory,omitempty"`
}

// Deployment names become Redis namespaces and container labels, so they are
// restricted to DNS-label characters.
var deploymentNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// IsEnabled reports whether the connection is active. Absent means enabled.
func (c *ConnectionConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Validate performs strict structural validation on the configuration.
// Registry-aware checks (unknown elements, missing required config) live in
// ValidateElements so structural validation works without a catalog.
func (c *CombConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: deployment name
	if c.Deployment.Name == "" {
		return fmt.Errorf("deployment.name is required")
	}
	if !deploymentNamePattern.MatchString(c.Deployment.Name) {
		return fmt.Errorf("invalid deployment name '%s': must be lowercase alphanumeric with hyphens", c.Deployment.Name)
	}

	// Required: at least one element
	if len(c.Elements) == 0 {
		return fmt.Errorf("no elements defined")
	}

	for name, el := range c.Elements {
		if el.Element == "" {
			return fmt.Errorf("element '%s': element id is required", name)
		}
	}

	for i, conn := range c.Connections {
		if err := conn.Validate(i, c.Elements); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks one connection declaration against the elements map
func (c *ConnectionConfig) Validate(index int, elements map[string]ElementConfig) error {
	if c.SourceDeployment == "" {
		return fmt.Errorf("connection %d: source_deployment is required", index)
	}
	if !deploymentNamePattern.MatchString(c.SourceDeployment) {
		return fmt.Errorf("connection %d: invalid source_deployment '%s'", index, c.SourceDeployment)
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("connection %d: at least one target is required", index)
	}
	for j, target := range c.Targets {
		if target.Element == "" {
			return fmt.Errorf("connection %d target %d: element is required", index, j)
		}
		if _, ok := elements[target.Element]; !ok {
			return fmt.Errorf("connection %d target %d: element '%s' is not defined in elements", index, j, target.Element)
		}
		if target.Input == "" {
			return fmt.Errorf("connection %d target %d: input is required", index, j)
		}
		if target.SourceElement == "" {
			return fmt.Errorf("connection %d target %d: source_element is required", index, j)
		}
		if target.SourcePath == "" {
			return fmt.Errorf("connection %d target %d: source_path is required", index, j)
		}
	}
	return nil
}

// ValidateElements checks every element against the manifest registry:
// the element must exist (aliases allowed) and its config must satisfy the
// manifest's required fields.
func (c *CombConfig) ValidateElements(reg *manifest.Registry) error {
	for name, el := range c.Elements {
		m := reg.Get(el.Element)
		if m == nil {
			return fmt.Errorf("element '%s': unknown element id '%s'", name, el.Element)
		}

		result := reg.ValidateRequiredConfig(el.Element, el.Config)
		if !result.Valid {
			return fmt.Errorf("element '%s' (%s): missing required config fields: %v", name, m.ElementID, result.MissingFields)
		}
	}

	// A composition needs an anchor: elements that cannot run standalone are
	// dependents, so at least one element must either be standalone-capable
	// or be fed by an enabled connection.
	fed := make(map[string]bool)
	for _, conn := range c.Connections {
		if !conn.IsEnabled() {
			continue
		}
		for _, target := range conn.Targets {
			fed[target.Element] = true
		}
	}
	anchored := false
	for name, el := range c.Elements {
		if reg.CanBeStandalone(el.Element) || fed[name] {
			anchored = true
			break
		}
	}
	if !anchored {
		return fmt.Errorf("no element in the composition can run standalone and none is fed by a connection; add a standalone-capable element or a connection")
	}

	// Connection targets must point at inputs the element's tier allows.
	for i, conn := range c.Connections {
		for j, target := range conn.Targets {
			el := c.Elements[target.Element]
			m := reg.Get(el.Element)
			if m == nil {
				return fmt.Errorf("connection %d target %d: unknown element id '%s'", i, j, el.Element)
			}
			if m.Tier == manifest.TierUniversal {
				return fmt.Errorf("connection %d target %d: element '%s' is universal and accepts no connected inputs", i, j, target.Element)
			}
		}
	}

	return nil
}

// RedisURL returns the configured Redis URL or the default.
func (c *CombConfig) RedisURL() string {
	if c.Redis != nil && c.Redis.URL != "" {
		return c.Redis.URL
	}
	return "redis://localhost:6379"
}

// Load reads and structurally validates comb.yml from the specified path
func Load(path string) (*CombConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config CombConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
