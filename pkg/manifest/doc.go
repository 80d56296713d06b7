// Package manifest is the element catalog for Comb tool compositions.
//
// # Overview
//
// Every composable widget ("element") the platform offers is described by an
// ElementManifest: its configuration schema, the permission tier and context
// it needs, the actions it may execute, and the state buckets it touches.
// The manifests together form a Registry - the single source of truth
// consulted both when a composition is authored (generation-time validation)
// and when it runs (capability gating, standalone checks).
//
// # Registries are immutable
//
// A Registry is built once with NewRegistry (or the built-in Default
// catalog) and then only queried. Catalog invariants - unique ids, unique
// alias targets, the tier/context rule - are enforced at construction, so a
// registry that exists is a registry that is consistent. Tests can build
// alternate registries without touching any process-global state.
//
// # Lookups never fail loudly
//
// Querying an unknown element id returns nil or false, never an error.
// Compositions under iterative authoring routinely reference elements that
// do not exist yet; absence is an answer, not a fault. The one deliberate
// exception is ValidateRequiredConfig, which reports the
// UnknownElementSentinel in MissingFields so batch validation can report
// every problem in one pass.
package manifest
