package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validRegistry builds a small registry covering all three endpoint
// patterns. Tests mutate a fresh copy to trigger individual rules.
func validRegistry() *Registry {
	return &Registry{
		Services: map[string]ServiceConfig{
			ServiceText: {
				BaseURL:         "http://localhost:8001",
				TimeoutSeconds:  30,
				EndpointPattern: PatternSingle,
				Endpoint:        "/generate",
			},
			ServiceIllustrator: {
				BaseURL:         "http://localhost:8002",
				TimeoutSeconds:  45,
				EndpointPattern: PatternPerVariant,
			},
			ServiceAnalytics: {
				BaseURL:         "http://localhost:8003",
				TimeoutSeconds:  60,
				EndpointPattern: PatternTyped,
			},
		},
		Variants: []Variant{
			{
				VariantID: "title_hero",
				Service:   ServiceText,
				Classification: Classification{
					SlideType: SlideTypeHero,
					Priority:  10,
					Keywords:  []string{"title slide", "cover", "opening", "welcome", "intro"},
					LayoutID:  "L29",
				},
			},
			{
				VariantID: "pyramid",
				Service:   ServiceIllustrator,
				Endpoint:  "/pyramid/generate",
				Classification: Classification{
					SlideType: SlideTypeVisual,
					Priority:  50,
					Keywords:  []string{"pyramid", "hierarchy", "levels", "tiers", "layered"},
					LayoutID:  "L25",
				},
				Params: &VariantParams{
					ElementCount: &ElementCount{Min: 3, Optimal: 4, Max: 5},
				},
			},
			{
				VariantID: "bar_chart",
				Service:   ServiceAnalytics,
				Endpoint:  "/analytics/L02/{analytics_type}",
				Classification: Classification{
					SlideType: SlideTypeData,
					Priority:  60,
					Keywords:  []string{"bar chart", "bar graph", "comparison chart", "ranking", "versus"},
					LayoutID:  "L25",
				},
				Params: &VariantParams{AnalyticsType: "bar"},
			},
			{
				VariantID: "single_column",
				Service:   ServiceText,
				Classification: Classification{
					SlideType: SlideTypeText,
					Priority:  90,
					Keywords:  []string{"paragraph", "prose", "narrative text", "plain text", "body copy"},
					LayoutID:  "L25",
				},
			},
		},
	}
}

func TestValidateAll(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *Registry)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid registry",
			mutate:  func(r *Registry) {},
			wantErr: false,
		},
		{
			name: "no services",
			mutate: func(r *Registry) {
				r.Services = map[string]ServiceConfig{}
			},
			wantErr: true,
			errMsg:  "at least one service required",
		},
		{
			name: "no variants",
			mutate: func(r *Registry) {
				r.Variants = nil
			},
			wantErr: true,
			errMsg:  "at least one variant required",
		},
		{
			name: "service missing base URL",
			mutate: func(r *Registry) {
				svc := r.Services[ServiceText]
				svc.BaseURL = ""
				r.Services[ServiceText] = svc
			},
			wantErr: true,
			errMsg:  "base_url",
		},
		{
			name: "invalid endpoint pattern",
			mutate: func(r *Registry) {
				svc := r.Services[ServiceText]
				svc.EndpointPattern = "round_robin"
				r.Services[ServiceText] = svc
			},
			wantErr: true,
			errMsg:  "endpoint_pattern",
		},
		{
			name: "timeout out of range",
			mutate: func(r *Registry) {
				svc := r.Services[ServiceText]
				svc.TimeoutSeconds = 0
				r.Services[ServiceText] = svc
			},
			wantErr: true,
			errMsg:  "expected 1..600",
		},
		{
			name: "single-pattern service without shared endpoint",
			mutate: func(r *Registry) {
				svc := r.Services[ServiceText]
				svc.Endpoint = ""
				r.Services[ServiceText] = svc
			},
			wantErr: true,
			errMsg:  "shared endpoint",
		},
		{
			name: "variant id with uppercase",
			mutate: func(r *Registry) {
				r.Variants[1].VariantID = "Pyramid"
			},
			wantErr: true,
			errMsg:  "must match",
		},
		{
			name: "variant id with hyphen",
			mutate: func(r *Registry) {
				r.Variants[1].VariantID = "bar-chart"
			},
			wantErr: true,
			errMsg:  "must match",
		},
		{
			name: "duplicate variant id",
			mutate: func(r *Registry) {
				r.Variants[3].VariantID = "title_hero"
			},
			wantErr: true,
			errMsg:  "duplicate variant_id",
		},
		{
			name: "unknown service reference",
			mutate: func(r *Registry) {
				r.Variants[0].Service = "renderer"
			},
			wantErr: true,
			errMsg:  "service not found",
		},
		{
			name: "priority below range",
			mutate: func(r *Registry) {
				r.Variants[0].Classification.Priority = 0
			},
			wantErr: true,
			errMsg:  "expected 1..100",
		},
		{
			name: "priority above range",
			mutate: func(r *Registry) {
				r.Variants[0].Classification.Priority = 101
			},
			wantErr: true,
			errMsg:  "expected 1..100",
		},
		{
			name: "fewer than five keywords",
			mutate: func(r *Registry) {
				r.Variants[1].Classification.Keywords = []string{"pyramid", "hierarchy"}
			},
			wantErr: true,
			errMsg:  "at least 5 required",
		},
		{
			name: "duplicate keyword across variants",
			mutate: func(r *Registry) {
				r.Variants[3].Classification.Keywords[0] = "pyramid"
			},
			wantErr: true,
			errMsg:  `keyword "pyramid" already used by variant 'pyramid'`,
		},
		{
			name: "duplicate keyword differing only in case",
			mutate: func(r *Registry) {
				r.Variants[3].Classification.Keywords[0] = "Title Slide"
			},
			wantErr: true,
			errMsg:  "already used by variant 'title_hero'",
		},
		{
			name: "blank keyword",
			mutate: func(r *Registry) {
				r.Variants[1].Classification.Keywords[2] = "   "
			},
			wantErr: true,
			errMsg:  "blank keyword",
		},
		{
			name: "unknown layout id",
			mutate: func(r *Registry) {
				r.Variants[1].Classification.LayoutID = "L30"
			},
			wantErr: true,
			errMsg:  "expected L25 or L29",
		},
		{
			name: "hero variant with content layout",
			mutate: func(r *Registry) {
				r.Variants[0].Classification.LayoutID = "L25"
			},
			wantErr: true,
			errMsg:  "hero variants require layout L29",
		},
		{
			name: "content variant with hero layout",
			mutate: func(r *Registry) {
				r.Variants[1].Classification.LayoutID = "L29"
			},
			wantErr: true,
			errMsg:  "reserved for hero variants",
		},
		{
			name: "single-pattern variant overriding the shared endpoint",
			mutate: func(r *Registry) {
				r.Variants[0].Endpoint = "/custom"
			},
			wantErr: true,
			errMsg:  "share the service endpoint",
		},
		{
			name: "per-variant variant without endpoint",
			mutate: func(r *Registry) {
				r.Variants[1].Endpoint = ""
			},
			wantErr: true,
			errMsg:  "endpoint per variant",
		},
		{
			name: "per-variant endpoint collision",
			mutate: func(r *Registry) {
				r.Variants = append(r.Variants, Variant{
					VariantID: "funnel",
					Service:   ServiceIllustrator,
					Endpoint:  "/pyramid/generate",
					Classification: Classification{
						SlideType: SlideTypeVisual,
						Priority:  52,
						Keywords:  []string{"funnel", "conversion", "stages narrowing", "pipeline shape", "drop off"},
						LayoutID:  "L25",
					},
				})
			},
			wantErr: true,
			errMsg:  "already used by variant 'pyramid'",
		},
		{
			name: "typed endpoint without placeholder",
			mutate: func(r *Registry) {
				r.Variants[2].Endpoint = "/analytics/L02/bar"
			},
			wantErr: true,
			errMsg:  "{analytics_type} placeholder",
		},
		{
			name: "typed variant without analytics type",
			mutate: func(r *Registry) {
				r.Variants[2].Params = &VariantParams{}
			},
			wantErr: true,
			errMsg:  "analytics type",
		},
		{
			name: "element count out of order",
			mutate: func(r *Registry) {
				r.Variants[1].Params.ElementCount = &ElementCount{Min: 5, Optimal: 3, Max: 4}
			},
			wantErr: true,
			errMsg:  "min <= optimal <= max",
		},
		{
			name: "element count min below one",
			mutate: func(r *Registry) {
				r.Variants[1].Params.ElementCount = &ElementCount{Min: 0, Optimal: 3, Max: 5}
			},
			wantErr: true,
			errMsg:  "min <= optimal <= max",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := validRegistry()
			tt.mutate(registry)

			err := NewValidator(registry).ValidateAll()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidationErrorTyping(t *testing.T) {
	registry := validRegistry()
	registry.Variants[0].Service = "renderer"

	err := NewValidator(registry).ValidateAll()
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrServiceNotFound)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "variant", verr.Component)
	assert.Equal(t, "title_hero", verr.ID)
	assert.Equal(t, "service", verr.Field)
}
