package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Store backend identifiers accepted by SESSION_STORE_BACKEND.
const (
	StoreBackendMemory   = "memory"
	StoreBackendPostgres = "postgres"
	StoreBackendRedis    = "redis"
)

// StageModels holds the model identifier used by each dialog stage.
type StageModels struct {
	Greeting   string `yaml:"greeting"`
	Questions  string `yaml:"questions"`
	Plan       string `yaml:"plan"`
	Strawman   string `yaml:"strawman"`
	Refinement string `yaml:"refinement"`
	Intent     string `yaml:"intent"`
}

// Settings holds all environment-driven configuration. Values are resolved
// in three layers: built-in defaults, then the optional YAML overlay named
// by DECKHAND_CONFIG, then environment variables.
type Settings struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	StoreBackend string `yaml:"store_backend"`
	DatabaseURL  string `yaml:"database_url"`
	RedisURL     string `yaml:"redis_url"`

	GoogleAPIKey string      `yaml:"google_api_key"`
	Models       StageModels `yaml:"models"`

	MaxVertexRetries            int `yaml:"max_vertex_retries"`
	VertexRetryBaseDelaySeconds int `yaml:"vertex_retry_base_delay_seconds"`
	RateLimitDelaySeconds       int `yaml:"rate_limit_delay_seconds"`

	TextServiceURL        string `yaml:"text_service_url"`
	IllustratorServiceURL string `yaml:"illustrator_service_url"`
	AnalyticsServiceURL   string `yaml:"analytics_service_url"`

	PreviewBuilderEnabled bool   `yaml:"preview_builder_enabled"`
	DeckBuilderURL        string `yaml:"deck_builder_url"`
	StreamlinedProtocol   bool   `yaml:"streamlined_protocol_enabled"`

	DisabledChartTypes []string `yaml:"disabled_chart_types"`
	FallbackChartType  string   `yaml:"fallback_chart_type"`

	Stage6MaxParallel    int `yaml:"stage6_max_parallel"`
	HistoryReplayDelayMS int `yaml:"history_replay_delay_ms"`

	RegistryPath string `yaml:"registry_path"`
	LogLevel     string `yaml:"log_level"`
}

// settingsOverlay is the root of the optional YAML overlay file.
type settingsOverlay struct {
	Settings Settings `yaml:"settings"`
}

// defaultSettings returns the built-in defaults before overlay and env
// resolution.
func defaultSettings() *Settings {
	return &Settings{
		Host:         "0.0.0.0",
		Port:         "8080",
		StoreBackend: StoreBackendMemory,
		Models: StageModels{
			Greeting:   "gemini-2.5-flash",
			Questions:  "gemini-2.5-flash",
			Plan:       "gemini-2.5-flash",
			Strawman:   "gemini-2.5-pro",
			Refinement: "gemini-2.5-pro",
			Intent:     "gemini-2.5-flash",
		},
		MaxVertexRetries:            5,
		VertexRetryBaseDelaySeconds: 2,
		RateLimitDelaySeconds:       2,
		StreamlinedProtocol:         true,
		FallbackChartType:           "line_chart",
		Stage6MaxParallel:           8,
		HistoryReplayDelayMS:        50,
		LogLevel:                    "info",
	}
}

// LoadSettings resolves settings from defaults, the optional YAML overlay
// and the environment, then validates them.
func LoadSettings() (*Settings, error) {
	settings := defaultSettings()

	if path := os.Getenv("DECKHAND_CONFIG"); path != "" {
		overlay, err := loadOverlay(path)
		if err != nil {
			return nil, err
		}
		if err := mergo.Merge(settings, overlay, mergo.WithOverride); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("merging overlay: %w", err))
		}
	}

	settings.applyEnv()

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// loadOverlay reads and parses the YAML overlay, expanding {{.VAR}}
// references against the environment first.
func loadOverlay(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewLoadError(path, err)
	}

	expanded := ExpandEnv(data)

	var overlay settingsOverlay
	if err := yaml.Unmarshal(expanded, &overlay); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	return &overlay.Settings, nil
}

// applyEnv overrides each field from its environment variable when set.
func (s *Settings) applyEnv() {
	s.Host = envString("HTTP_HOST", s.Host)
	s.Port = envString("HTTP_PORT", s.Port)

	s.StoreBackend = envString("SESSION_STORE_BACKEND", s.StoreBackend)
	s.DatabaseURL = envString("DATABASE_URL", s.DatabaseURL)
	s.RedisURL = envString("REDIS_URL", s.RedisURL)

	s.GoogleAPIKey = envString("GOOGLE_API_KEY", s.GoogleAPIKey)
	s.Models.Greeting = envString("GREETING_MODEL", s.Models.Greeting)
	s.Models.Questions = envString("QUESTIONS_MODEL", s.Models.Questions)
	s.Models.Plan = envString("PLAN_MODEL", s.Models.Plan)
	s.Models.Strawman = envString("STRAWMAN_MODEL", s.Models.Strawman)
	s.Models.Refinement = envString("REFINEMENT_MODEL", s.Models.Refinement)
	s.Models.Intent = envString("INTENT_MODEL", s.Models.Intent)

	s.MaxVertexRetries = envInt("MAX_VERTEX_RETRIES", s.MaxVertexRetries)
	s.VertexRetryBaseDelaySeconds = envInt("VERTEX_RETRY_BASE_DELAY_SECONDS", s.VertexRetryBaseDelaySeconds)
	s.RateLimitDelaySeconds = envInt("RATE_LIMIT_DELAY_SECONDS", s.RateLimitDelaySeconds)

	s.TextServiceURL = envString("TEXT_SERVICE_URL", s.TextServiceURL)
	s.IllustratorServiceURL = envString("ILLUSTRATOR_SERVICE_URL", s.IllustratorServiceURL)
	s.AnalyticsServiceURL = envString("ANALYTICS_SERVICE_URL", s.AnalyticsServiceURL)

	s.PreviewBuilderEnabled = envBool("PREVIEW_BUILDER_ENABLED", s.PreviewBuilderEnabled)
	s.DeckBuilderURL = envString("DECK_BUILDER_URL", s.DeckBuilderURL)
	s.StreamlinedProtocol = envBool("STREAMLINED_PROTOCOL_ENABLED", s.StreamlinedProtocol)

	if raw := os.Getenv("DISABLED_CHART_TYPES"); raw != "" {
		s.DisabledChartTypes = splitCSV(raw)
	}
	s.FallbackChartType = envString("FALLBACK_CHART_TYPE", s.FallbackChartType)

	s.Stage6MaxParallel = envInt("STAGE6_MAX_PARALLEL", s.Stage6MaxParallel)
	s.HistoryReplayDelayMS = envInt("HISTORY_REPLAY_DELAY_MS", s.HistoryReplayDelayMS)

	s.RegistryPath = envString("REGISTRY_PATH", s.RegistryPath)
	s.LogLevel = envString("LOG_LEVEL", s.LogLevel)
}

// Validate checks field ranges and backend requirements. The history replay
// delay is clamped rather than rejected; the protocol allows at most 100ms
// between replayed messages.
func (s *Settings) Validate() error {
	switch s.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendPostgres:
		if s.DatabaseURL == "" {
			return NewValidationError("settings", "store", "database_url", fmt.Errorf("%w: required for the postgres backend", ErrMissingRequiredField))
		}
	case StoreBackendRedis:
		if s.RedisURL == "" {
			return NewValidationError("settings", "store", "redis_url", fmt.Errorf("%w: required for the redis backend", ErrMissingRequiredField))
		}
	default:
		return NewValidationError("settings", "store", "store_backend", fmt.Errorf("%w: %q (expected memory, postgres or redis)", ErrInvalidValue, s.StoreBackend))
	}

	if s.MaxVertexRetries < 0 {
		return NewValidationError("settings", "retry", "max_vertex_retries", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if s.VertexRetryBaseDelaySeconds < 0 {
		return NewValidationError("settings", "retry", "vertex_retry_base_delay_seconds", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if s.RateLimitDelaySeconds < 0 {
		return NewValidationError("settings", "retry", "rate_limit_delay_seconds", fmt.Errorf("%w: must not be negative", ErrInvalidValue))
	}
	if s.Stage6MaxParallel < 1 {
		return NewValidationError("settings", "scheduler", "stage6_max_parallel", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}

	if s.HistoryReplayDelayMS < 0 {
		s.HistoryReplayDelayMS = 0
	}
	if s.HistoryReplayDelayMS > 100 {
		s.HistoryReplayDelayMS = 100
	}

	switch strings.ToLower(s.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return NewValidationError("settings", "logging", "log_level", fmt.Errorf("%w: %q", ErrInvalidValue, s.LogLevel))
	}

	return nil
}

// VertexRetryBaseDelay returns the retry base delay as a duration.
func (s *Settings) VertexRetryBaseDelay() time.Duration {
	return time.Duration(s.VertexRetryBaseDelaySeconds) * time.Second
}

// RateLimitDelay returns the per-service minimum inter-call delay.
func (s *Settings) RateLimitDelay() time.Duration {
	return time.Duration(s.RateLimitDelaySeconds) * time.Second
}

// HistoryReplayDelay returns the inter-message delay used when replaying
// conversation history to a reconnecting client.
func (s *Settings) HistoryReplayDelay() time.Duration {
	return time.Duration(s.HistoryReplayDelayMS) * time.Millisecond
}

// ServiceBaseURL returns the env override for a generator service, or empty
// when the registry value should be used.
func (s *Settings) ServiceBaseURL(service string) string {
	switch service {
	case ServiceText:
		return s.TextServiceURL
	case ServiceIllustrator:
		return s.IllustratorServiceURL
	case ServiceAnalytics:
		return s.AnalyticsServiceURL
	default:
		return ""
	}
}

// ChartTypeDisabled reports whether a variant id is disabled by
// configuration; disabled variants are remapped to FallbackChartType before
// dispatch.
func (s *Settings) ChartTypeDisabled(variantID string) bool {
	for _, disabled := range s.DisabledChartTypes {
		if disabled == variantID {
			return true
		}
	}
	return false
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
