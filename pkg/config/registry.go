package config

import (
	"sort"
	"strings"
	"time"
)

// Generator service names. Every registry variant belongs to one of these.
const (
	ServiceText        = "text"
	ServiceIllustrator = "illustrator"
	ServiceAnalytics   = "analytics"
)

// Slide-type classification families used by the builtin taxonomy and the
// diversity rule.
const (
	SlideTypeHero       = "hero"
	SlideTypeText       = "text"
	SlideTypeStructured = "structured"
	SlideTypeVisual     = "visual"
	SlideTypeData       = "data"
)

// Well-known variant ids the position rules reach for. A custom registry
// that omits one simply skips the corresponding override.
const (
	DefaultContentVariantID = "single_column"
	TitleHeroVariantID      = "title_hero"
	ClosingHeroVariantID    = "closing_hero"
	SectionHeroVariantID    = "section_hero"
	SummaryGridVariantID    = "summary_grid"
)

// EndpointPattern defines how a generator service's endpoints are addressed.
type EndpointPattern string

const (
	// PatternSingle routes every variant to one endpoint; the variant is
	// selected in the request body.
	PatternSingle EndpointPattern = "single"
	// PatternPerVariant routes each variant to its own endpoint path.
	PatternPerVariant EndpointPattern = "per_variant"
	// PatternTyped routes by a type parameter substituted into the path.
	PatternTyped EndpointPattern = "typed"
)

// IsValid checks if the endpoint pattern is one of the three supported kinds.
func (p EndpointPattern) IsValid() bool {
	return p == PatternSingle || p == PatternPerVariant || p == PatternTyped
}

// ServiceConfig describes one generator service.
type ServiceConfig struct {
	BaseURL         string          `json:"base_url"`
	TimeoutSeconds  int             `json:"timeout_seconds"`
	EndpointPattern EndpointPattern `json:"endpoint_pattern"`
	// Endpoint is the shared path for single-pattern services.
	Endpoint string `json:"endpoint,omitempty"`
}

// Timeout returns the per-request timeout for calls to this service.
func (s ServiceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Classification holds the keyword-matching rules for one variant.
type Classification struct {
	SlideType string   `json:"slide_type"`
	Priority  int      `json:"priority"`
	Keywords  []string `json:"keywords"`
	LayoutID  string   `json:"layout_id"`
}

// ElementCount bounds the number of elements an illustration accepts.
type ElementCount struct {
	Min     int `json:"min"`
	Optimal int `json:"optimal"`
	Max     int `json:"max"`
}

// VariantParams carries service-specific parameters.
type VariantParams struct {
	ElementCount  *ElementCount `json:"element_count,omitempty"`
	AnalyticsType string        `json:"analytics_type,omitempty"`
	DataShape     string        `json:"data_shape,omitempty"`
}

// Variant is one concrete visual template within a slide-type
// classification.
type Variant struct {
	VariantID      string         `json:"variant_id"`
	Service        string         `json:"service"`
	Endpoint       string         `json:"endpoint,omitempty"`
	Classification Classification `json:"classification"`
	LLMGuidance    string         `json:"llm_guidance,omitempty"`
	Params         *VariantParams `json:"params,omitempty"`
}

// IsHero reports whether the variant requires the full-bleed hero layout.
func (v *Variant) IsHero() bool {
	return v.Classification.SlideType == SlideTypeHero
}

// Registry is the process-wide variant/keyword taxonomy. It is built once
// at startup and immutable afterwards; all lookups are read-only.
type Registry struct {
	Services map[string]ServiceConfig `json:"services"`
	Variants []Variant                `json:"variants"`

	byID      map[string]*Variant
	byKeyword map[string]*Variant
	sorted    []*Variant
}

// buildIndexes prepares the lookup maps and the priority ordering. Called
// once by the loader after defaults are applied.
func (r *Registry) buildIndexes() {
	r.byID = make(map[string]*Variant, len(r.Variants))
	r.byKeyword = make(map[string]*Variant)
	r.sorted = make([]*Variant, 0, len(r.Variants))

	for i := range r.Variants {
		v := &r.Variants[i]
		r.byID[v.VariantID] = v
		r.sorted = append(r.sorted, v)
		for _, kw := range v.Classification.Keywords {
			r.byKeyword[normalizeKeyword(kw)] = v
		}
	}

	sort.SliceStable(r.sorted, func(a, b int) bool {
		if r.sorted[a].Classification.Priority != r.sorted[b].Classification.Priority {
			return r.sorted[a].Classification.Priority < r.sorted[b].Classification.Priority
		}
		return r.sorted[a].VariantID < r.sorted[b].VariantID
	})
}

// VariantByID returns the variant with the given id.
func (r *Registry) VariantByID(id string) (*Variant, bool) {
	v, ok := r.byID[id]
	return v, ok
}

// Has reports whether a variant id exists in the registry.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Service returns the configuration for a generator service.
func (r *Registry) Service(name string) (ServiceConfig, bool) {
	svc, ok := r.Services[name]
	return svc, ok
}

// VariantsByPriority returns all variants in ascending priority order
// (ties broken by variant id). Lower priority means earlier classification
// precedence.
func (r *Registry) VariantsByPriority() []*Variant {
	return r.sorted
}

// VariantsForService returns the variants routed to one service, in
// priority order.
func (r *Registry) VariantsForService(name string) []*Variant {
	var out []*Variant
	for _, v := range r.sorted {
		if v.Service == name {
			out = append(out, v)
		}
	}
	return out
}

// HeroVariants returns the hero-layout variants in priority order.
func (r *Registry) HeroVariants() []*Variant {
	var out []*Variant
	for _, v := range r.sorted {
		if v.IsHero() {
			out = append(out, v)
		}
	}
	return out
}

// ContentVariants returns the content-layout variants in priority order.
func (r *Registry) ContentVariants() []*Variant {
	var out []*Variant
	for _, v := range r.sorted {
		if !v.IsHero() {
			out = append(out, v)
		}
	}
	return out
}

// DefaultContentVariant returns the classifier fallback: single_column when
// present, otherwise the lowest-precedence content variant.
func (r *Registry) DefaultContentVariant() *Variant {
	if v, ok := r.byID[DefaultContentVariantID]; ok && !v.IsHero() {
		return v
	}
	content := r.ContentVariants()
	if len(content) == 0 {
		return nil
	}
	return content[len(content)-1]
}

// DefaultHeroVariant returns title_hero when present, otherwise the
// highest-precedence hero variant.
func (r *Registry) DefaultHeroVariant() *Variant {
	if v, ok := r.byID[TitleHeroVariantID]; ok && v.IsHero() {
		return v
	}
	heroes := r.HeroVariants()
	if len(heroes) == 0 {
		return nil
	}
	return heroes[0]
}

// KeywordIndex returns the normalized keyword to variant mapping.
func (r *Registry) KeywordIndex() map[string]*Variant {
	return r.byKeyword
}

// normalizeKeyword lowercases and collapses internal whitespace so keyword
// lookups are case-insensitive and spacing-tolerant.
func normalizeKeyword(kw string) string {
	return strings.Join(strings.Fields(strings.ToLower(kw)), " ")
}
