// Package e2e provides end-to-end test infrastructure for the deckhand
// dialog pipeline: a full server on a loopback port, fake generator
// services, a fake deck builder, and a scripted model client.
package e2e

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deckhand-io/deckhand/pkg/api"
	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/deckbuilder"
	"github.com/deckhand-io/deckhand/pkg/generator"
	"github.com/deckhand-io/deckhand/pkg/retry"
	"github.com/deckhand-io/deckhand/pkg/store"
)

// TestApp boots a complete deckhand instance for e2e testing. The model
// is scripted and the generator services are HTTP fakes; everything else
// is the real wiring.
type TestApp struct {
	Config   *config.Config
	Store    *store.MemoryStore
	LLM      *ScriptedLLMClient
	Services *FakeServices
	Router   *generator.Router
	Builder  *deckbuilder.Builder
	Server   *api.Server

	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/ws"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	llmClient      *ScriptedLLMClient
	disabledCharts []string
	previewBuilder bool
	maxRetries     int
	tweak          func(*config.Settings)
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLMClient sets a pre-scripted model client.
func WithLLMClient(client *ScriptedLLMClient) TestAppOption {
	return func(c *testAppConfig) { c.llmClient = client }
}

// WithDisabledCharts disables chart variants, forcing the fallback remap.
func WithDisabledCharts(variantIDs ...string) TestAppOption {
	return func(c *testAppConfig) { c.disabledCharts = variantIDs }
}

// WithoutPreviewBuilder disables the deck builder.
func WithoutPreviewBuilder() TestAppOption {
	return func(c *testAppConfig) { c.previewBuilder = false }
}

// WithMaxRetries sets the generator/LLM retry budget.
func WithMaxRetries(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxRetries = n }
}

// WithSettings applies a final settings tweak after all defaults.
func WithSettings(fn func(*config.Settings)) TestAppOption {
	return func(c *testAppConfig) { c.tweak = fn }
}

// NewTestApp creates and starts a full deckhand test instance. Shutdown
// is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		previewBuilder: true,
		maxRetries:     3,
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.llmClient == nil {
		tc.llmClient = NewScriptedLLMClient()
	}

	registry, err := config.LoadRegistry("")
	require.NoError(t, err)

	fakes := newFakeServices(t)

	settings := &config.Settings{
		Host:         "127.0.0.1",
		Port:         "0",
		StoreBackend: config.StoreBackendMemory,
		GoogleAPIKey: "e2e-test-key",
		Models: config.StageModels{
			Greeting:   "gemini-2.5-flash",
			Questions:  "gemini-2.5-flash",
			Plan:       "gemini-2.5-flash",
			Strawman:   "gemini-2.5-pro",
			Refinement: "gemini-2.5-pro",
			Intent:     "gemini-2.5-flash",
		},
		MaxVertexRetries:      tc.maxRetries,
		TextServiceURL:        fakes.Text.URL(),
		IllustratorServiceURL: fakes.Illustrator.URL(),
		AnalyticsServiceURL:   fakes.Analytics.URL(),
		PreviewBuilderEnabled: tc.previewBuilder,
		DeckBuilderURL:        fakes.DeckBuilder.URL(),
		StreamlinedProtocol:   true,
		DisabledChartTypes:    tc.disabledCharts,
		FallbackChartType:     "line_chart",
		Stage6MaxParallel:     4,
		LogLevel:              "info",
	}
	if tc.tweak != nil {
		tc.tweak(settings)
	}
	cfg := &config.Config{Settings: settings, Registry: registry}

	sessionStore := store.NewMemoryStore()
	pacer := retry.NewPacer(settings.RateLimitDelay())
	router := generator.NewRouter(cfg, pacer)
	builder := deckbuilder.New(settings)

	server := api.NewServer(cfg, tc.llmClient, router, builder, sessionStore)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = server.StartWithListener(ln)
	}()
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	})

	addr := ln.Addr().String()
	return &TestApp{
		Config:   cfg,
		Store:    sessionStore,
		LLM:      tc.llmClient,
		Services: fakes,
		Router:   router,
		Builder:  builder,
		Server:   server,
		BaseURL:  fmt.Sprintf("http://%s", addr),
		WSURL:    fmt.Sprintf("ws://%s/ws", addr),
		t:        t,
	}
}

// Connect dials the WebSocket endpoint with the given query string and
// registers cleanup.
func (a *TestApp) Connect(t *testing.T, query string) *WSClient {
	t.Helper()
	// The context outlives this call; it feeds the client's read loop
	// until Close.
	client, err := WSConnect(context.Background(), a.WSURL+"?"+query)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}
