package config

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// builtinTaxonomy is the default variant/keyword registry, used when
// REGISTRY_PATH is not set.
//
//go:embed taxonomy.json
var builtinTaxonomy []byte

// taxonomySchema is the published schema every registry document must
// conform to.
//
//go:embed schema.json
var taxonomySchema []byte

// registrySourceBuiltin labels load errors originating from the embedded
// taxonomy.
const registrySourceBuiltin = "builtin taxonomy"

// Config bundles the two process-wide configuration values: env-driven
// settings and the immutable taxonomy registry. Both are constructed once
// at startup and passed by reference; runtime mutation is forbidden.
type Config struct {
	Settings *Settings
	Registry *Registry
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Resolve settings (defaults, optional YAML overlay, environment)
//  2. Load the taxonomy registry (REGISTRY_PATH or embedded builtin)
//  3. Check the registry document against the published JSON Schema
//  4. Apply service defaults and build lookup indexes
//  5. Validate registry semantics (fail-fast)
func Initialize(ctx context.Context) (*Config, error) {
	slog.Info("Initializing configuration")

	settings, err := LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	registry, err := LoadRegistry(settings.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy registry: %w", err)
	}

	if err := NewValidator(registry).ValidateAll(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	slog.Info("Configuration initialized successfully",
		"services", len(registry.Services),
		"variants", len(registry.Variants),
		"store_backend", settings.StoreBackend,
		"preview_builder", settings.PreviewBuilderEnabled)

	return &Config{Settings: settings, Registry: registry}, nil
}

// LoadRegistry reads and parses the taxonomy registry. An empty path
// selects the embedded builtin taxonomy. The document is checked against
// the schema before semantic validation runs.
func LoadRegistry(path string) (*Registry, error) {
	data := builtinTaxonomy
	source := registrySourceBuiltin
	if path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, NewLoadError(path, err)
		}
		data = fileData
		source = path
	}

	if err := validateRegistrySchema(data); err != nil {
		return nil, NewLoadError(source, err)
	}

	var registry Registry
	if err := json.Unmarshal(data, &registry); err != nil {
		return nil, NewLoadError(source, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
	}

	applyServiceDefaults(&registry)
	registry.buildIndexes()
	return &registry, nil
}

// validateRegistrySchema checks a registry document against the embedded
// JSON Schema.
func validateRegistrySchema(data []byte) error {
	var schemaDoc any
	if err := json.Unmarshal(taxonomySchema, &schemaDoc); err != nil {
		return fmt.Errorf("unmarshal embedded schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("taxonomy-schema.json", schemaDoc); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("taxonomy-schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

// applyServiceDefaults fills per-service defaults before validation.
func applyServiceDefaults(registry *Registry) {
	for name, svc := range registry.Services {
		if svc.TimeoutSeconds == 0 {
			svc.TimeoutSeconds = 30
			registry.Services[name] = svc
		}
	}
}
