package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv neutralizes every variable the loader reads so tests are
// deterministic regardless of the developer's shell. t.Setenv with an
// empty value is treated as unset by the env helpers.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"HTTP_HOST", "HTTP_PORT",
		"SESSION_STORE_BACKEND", "DATABASE_URL", "REDIS_URL",
		"GOOGLE_API_KEY",
		"GREETING_MODEL", "QUESTIONS_MODEL", "PLAN_MODEL",
		"STRAWMAN_MODEL", "REFINEMENT_MODEL", "INTENT_MODEL",
		"MAX_VERTEX_RETRIES", "VERTEX_RETRY_BASE_DELAY_SECONDS", "RATE_LIMIT_DELAY_SECONDS",
		"TEXT_SERVICE_URL", "ILLUSTRATOR_SERVICE_URL", "ANALYTICS_SERVICE_URL",
		"PREVIEW_BUILDER_ENABLED", "DECK_BUILDER_URL", "STREAMLINED_PROTOCOL_ENABLED",
		"DISABLED_CHART_TYPES", "FALLBACK_CHART_TYPE",
		"STAGE6_MAX_PARALLEL", "HISTORY_REPLAY_DELAY_MS",
		"REGISTRY_PATH", "DECKHAND_CONFIG", "LOG_LEVEL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func writeRegistryFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestInitialize(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Initialize(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Settings resolve to defaults
	assert.Equal(t, "8080", cfg.Settings.Port)
	assert.Equal(t, StoreBackendMemory, cfg.Settings.StoreBackend)
	assert.Equal(t, 5, cfg.Settings.MaxVertexRetries)
	assert.True(t, cfg.Settings.StreamlinedProtocol)

	// Builtin taxonomy is loaded and indexed
	assert.Len(t, cfg.Registry.Services, 3)
	assert.Len(t, cfg.Registry.Variants, 18)
	assert.True(t, cfg.Registry.Has(DefaultContentVariantID))
	assert.True(t, cfg.Registry.Has(TitleHeroVariantID))
}

func TestInitializeRejectsInvalidSettings(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SESSION_STORE_BACKEND", "cassandra")

	_, err := Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), "store_backend")
}

func TestInitializeRequiresBackendURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("SESSION_STORE_BACKEND", StoreBackendPostgres)

	_, err := Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
	assert.Contains(t, err.Error(), "database_url")
}

func TestLoadRegistryBuiltin(t *testing.T) {
	registry, err := LoadRegistry("")
	require.NoError(t, err)

	assert.Len(t, registry.Variants, 18)
	require.NoError(t, NewValidator(registry).ValidateAll())

	// Position-rule variants ship in the builtin taxonomy
	titleHero, ok := registry.VariantByID(TitleHeroVariantID)
	require.True(t, ok)
	assert.True(t, titleHero.IsHero())
	assert.Equal(t, "L29", titleHero.Classification.LayoutID)

	closingHero, ok := registry.VariantByID(ClosingHeroVariantID)
	require.True(t, ok)
	assert.True(t, closingHero.IsHero())

	fallback, ok := registry.VariantByID(DefaultContentVariantID)
	require.True(t, ok)
	assert.False(t, fallback.IsHero())
	assert.Equal(t, "L25", fallback.Classification.LayoutID)

	// Analytics variants carry the typed endpoint shape
	for _, v := range registry.VariantsForService(ServiceAnalytics) {
		assert.Contains(t, v.Endpoint, "{analytics_type}", "variant %s", v.VariantID)
		require.NotNil(t, v.Params, "variant %s", v.VariantID)
		assert.NotEmpty(t, v.Params.AnalyticsType, "variant %s", v.VariantID)
	}
}

func TestLoadRegistryFromFile(t *testing.T) {
	path := writeRegistryFile(t, `{
		"services": {
			"text": {"base_url": "http://text:9000", "endpoint_pattern": "single", "endpoint": "/generate"}
		},
		"variants": [
			{
				"variant_id": "single_column",
				"service": "text",
				"classification": {
					"slide_type": "text",
					"priority": 90,
					"keywords": ["paragraph", "prose", "narrative text", "plain text", "body copy"],
					"layout_id": "L25"
				}
			}
		]
	}`)

	registry, err := LoadRegistry(path)
	require.NoError(t, err)

	assert.Len(t, registry.Variants, 1)

	svc, ok := registry.Service(ServiceText)
	require.True(t, ok)
	assert.Equal(t, "http://text:9000", svc.BaseURL)
	// Omitted timeout falls back to the 30s default
	assert.Equal(t, 30, svc.TimeoutSeconds)

	v, ok := registry.VariantByID("single_column")
	require.True(t, ok)
	assert.Equal(t, ServiceText, v.Service)
}

func TestLoadRegistryMissingFile(t *testing.T) {
	_, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)

	var lerr *LoadError
	require.ErrorAs(t, err, &lerr)
	assert.Contains(t, lerr.Source, "absent.json")
}

func TestLoadRegistryRejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "malformed JSON",
			content: `{"services": {`,
			wantErr: ErrInvalidJSON,
		},
		{
			name: "too few keywords",
			content: `{
				"services": {"text": {"base_url": "http://t", "endpoint_pattern": "single", "endpoint": "/g"}},
				"variants": [{
					"variant_id": "single_column", "service": "text",
					"classification": {"slide_type": "text", "priority": 90, "keywords": ["a", "b"], "layout_id": "L25"}
				}]
			}`,
			wantErr: ErrSchemaViolation,
		},
		{
			name: "priority out of range",
			content: `{
				"services": {"text": {"base_url": "http://t", "endpoint_pattern": "single", "endpoint": "/g"}},
				"variants": [{
					"variant_id": "single_column", "service": "text",
					"classification": {"slide_type": "text", "priority": 0, "keywords": ["a", "b", "c", "d", "e"], "layout_id": "L25"}
				}]
			}`,
			wantErr: ErrSchemaViolation,
		},
		{
			name: "invalid variant id shape",
			content: `{
				"services": {"text": {"base_url": "http://t", "endpoint_pattern": "single", "endpoint": "/g"}},
				"variants": [{
					"variant_id": "Single-Column", "service": "text",
					"classification": {"slide_type": "text", "priority": 90, "keywords": ["a", "b", "c", "d", "e"], "layout_id": "L25"}
				}]
			}`,
			wantErr: ErrSchemaViolation,
		},
		{
			name: "unknown layout id",
			content: `{
				"services": {"text": {"base_url": "http://t", "endpoint_pattern": "single", "endpoint": "/g"}},
				"variants": [{
					"variant_id": "single_column", "service": "text",
					"classification": {"slide_type": "text", "priority": 90, "keywords": ["a", "b", "c", "d", "e"], "layout_id": "L99"}
				}]
			}`,
			wantErr: ErrSchemaViolation,
		},
		{
			name: "unexpected top-level field",
			content: `{
				"services": {"text": {"base_url": "http://t", "endpoint_pattern": "single", "endpoint": "/g"}},
				"variants": [{
					"variant_id": "single_column", "service": "text",
					"classification": {"slide_type": "text", "priority": 90, "keywords": ["a", "b", "c", "d", "e"], "layout_id": "L25"}
				}],
				"extras": {}
			}`,
			wantErr: ErrSchemaViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeRegistryFile(t, tt.content)
			_, err := LoadRegistry(path)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
