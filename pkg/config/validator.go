package config

import (
	"fmt"
	"regexp"
	"strings"
)

// variantIDPattern is the required shape of a variant id.
var variantIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// RegistryValidator validates taxonomy registry semantics with clear error
// messages. The JSON Schema already rejects structural problems; the
// validator enforces the cross-cutting rules a schema cannot express
// (uniqueness, references, pattern/endpoint agreement) and repeats the
// cheap structural checks so registries built in code get the same
// guarantees as registries loaded from disk.
type RegistryValidator struct {
	registry *Registry
}

// NewValidator creates a validator for the given registry.
func NewValidator(registry *Registry) *RegistryValidator {
	return &RegistryValidator{registry: registry}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error).
func (v *RegistryValidator) ValidateAll() error {
	// Validate in order: services → variants
	// This ensures service references are validated before dependents

	if err := v.validateServices(); err != nil {
		return fmt.Errorf("service validation failed: %w", err)
	}

	if err := v.validateVariants(); err != nil {
		return fmt.Errorf("variant validation failed: %w", err)
	}

	return nil
}

func (v *RegistryValidator) validateServices() error {
	if len(v.registry.Services) == 0 {
		return NewValidationError("registry", "services", "", fmt.Errorf("%w: at least one service required", ErrMissingRequiredField))
	}

	for name, svc := range v.registry.Services {
		if svc.BaseURL == "" {
			return NewValidationError("service", name, "base_url", ErrMissingRequiredField)
		}

		if !svc.EndpointPattern.IsValid() {
			return NewValidationError("service", name, "endpoint_pattern", fmt.Errorf("%w: %q", ErrInvalidValue, svc.EndpointPattern))
		}

		if svc.TimeoutSeconds < 1 || svc.TimeoutSeconds > 600 {
			return NewValidationError("service", name, "timeout_seconds", fmt.Errorf("%w: %d (expected 1..600)", ErrInvalidValue, svc.TimeoutSeconds))
		}

		// Single-pattern services carry the shared endpoint themselves.
		if svc.EndpointPattern == PatternSingle && svc.Endpoint == "" {
			return NewValidationError("service", name, "endpoint", fmt.Errorf("%w: single-pattern services need a shared endpoint", ErrMissingRequiredField))
		}
	}

	return nil
}

func (v *RegistryValidator) validateVariants() error {
	if len(v.registry.Variants) == 0 {
		return NewValidationError("registry", "variants", "", fmt.Errorf("%w: at least one variant required", ErrMissingRequiredField))
	}

	seenIDs := make(map[string]bool, len(v.registry.Variants))
	// Keyword uniqueness is global across variants; a keyword owned by two
	// variants would make classification order-dependent.
	keywordOwner := make(map[string]string)
	endpointOwner := make(map[string]string)

	for i := range v.registry.Variants {
		variant := &v.registry.Variants[i]
		id := variant.VariantID

		if !variantIDPattern.MatchString(id) {
			return NewValidationError("variant", id, "variant_id", fmt.Errorf("%w: must match %s", ErrInvalidValue, variantIDPattern.String()))
		}

		if seenIDs[id] {
			return NewValidationError("variant", id, "variant_id", fmt.Errorf("%w: duplicate variant_id", ErrInvalidValue))
		}
		seenIDs[id] = true

		svc, ok := v.registry.Services[variant.Service]
		if !ok {
			return NewValidationError("variant", id, "service", fmt.Errorf("%w: %q", ErrServiceNotFound, variant.Service))
		}

		if err := v.validateClassification(variant, keywordOwner); err != nil {
			return err
		}

		if err := v.validateEndpoint(variant, svc, endpointOwner); err != nil {
			return err
		}

		if err := v.validateParams(variant, svc); err != nil {
			return err
		}
	}

	return nil
}

func (v *RegistryValidator) validateClassification(variant *Variant, keywordOwner map[string]string) error {
	id := variant.VariantID
	cls := variant.Classification

	if cls.SlideType == "" {
		return NewValidationError("variant", id, "classification.slide_type", ErrMissingRequiredField)
	}

	if cls.Priority < 1 || cls.Priority > 100 {
		return NewValidationError("variant", id, "classification.priority", fmt.Errorf("%w: %d (expected 1..100)", ErrInvalidValue, cls.Priority))
	}

	if len(cls.Keywords) < 5 {
		return NewValidationError("variant", id, "classification.keywords", fmt.Errorf("%w: %d keywords (at least 5 required)", ErrInvalidValue, len(cls.Keywords)))
	}

	for _, kw := range cls.Keywords {
		normalized := normalizeKeyword(kw)
		if normalized == "" {
			return NewValidationError("variant", id, "classification.keywords", fmt.Errorf("%w: blank keyword", ErrInvalidValue))
		}
		if owner, dup := keywordOwner[normalized]; dup {
			return NewValidationError("variant", id, "classification.keywords", fmt.Errorf("%w: keyword %q already used by variant '%s'", ErrInvalidValue, kw, owner))
		}
		keywordOwner[normalized] = id
	}

	// Hero variants render full-bleed (L29); everything else renders the
	// structured content layout (L25).
	switch cls.LayoutID {
	case "L25":
		if cls.SlideType == SlideTypeHero {
			return NewValidationError("variant", id, "classification.layout_id", fmt.Errorf("%w: hero variants require layout L29", ErrInvalidValue))
		}
	case "L29":
		if cls.SlideType != SlideTypeHero {
			return NewValidationError("variant", id, "classification.layout_id", fmt.Errorf("%w: layout L29 is reserved for hero variants", ErrInvalidValue))
		}
	default:
		return NewValidationError("variant", id, "classification.layout_id", fmt.Errorf("%w: %q (expected L25 or L29)", ErrInvalidValue, cls.LayoutID))
	}

	return nil
}

func (v *RegistryValidator) validateEndpoint(variant *Variant, svc ServiceConfig, endpointOwner map[string]string) error {
	id := variant.VariantID

	switch svc.EndpointPattern {
	case PatternSingle:
		if variant.Endpoint != "" && variant.Endpoint != svc.Endpoint {
			return NewValidationError("variant", id, "endpoint", fmt.Errorf("%w: single-pattern variants share the service endpoint %q", ErrInvalidValue, svc.Endpoint))
		}

	case PatternPerVariant:
		if variant.Endpoint == "" {
			return NewValidationError("variant", id, "endpoint", fmt.Errorf("%w: per_variant services need an endpoint per variant", ErrMissingRequiredField))
		}
		key := variant.Service + " " + variant.Endpoint
		if owner, dup := endpointOwner[key]; dup {
			return NewValidationError("variant", id, "endpoint", fmt.Errorf("%w: endpoint %q already used by variant '%s'", ErrInvalidValue, variant.Endpoint, owner))
		}
		endpointOwner[key] = id

	case PatternTyped:
		if variant.Endpoint == "" || !strings.Contains(variant.Endpoint, "{analytics_type}") {
			return NewValidationError("variant", id, "endpoint", fmt.Errorf("%w: typed endpoints must contain the {analytics_type} placeholder", ErrInvalidValue))
		}
	}

	return nil
}

func (v *RegistryValidator) validateParams(variant *Variant, svc ServiceConfig) error {
	id := variant.VariantID

	if svc.EndpointPattern == PatternTyped {
		if variant.Params == nil || variant.Params.AnalyticsType == "" {
			return NewValidationError("variant", id, "params.analytics_type", fmt.Errorf("%w: typed variants must name their analytics type", ErrMissingRequiredField))
		}
	}

	if variant.Params != nil && variant.Params.ElementCount != nil {
		ec := variant.Params.ElementCount
		if ec.Min < 1 || ec.Optimal < ec.Min || ec.Max < ec.Optimal {
			return NewValidationError("variant", id, "params.element_count", fmt.Errorf("%w: expected min <= optimal <= max with min >= 1", ErrInvalidValue))
		}
	}

	return nil
}
