package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeService is an httptest stand-in for one generator service. It
// records every request envelope and path, and answers 200 with a small
// JSON body unless a status override says otherwise.
type fakeService struct {
	name   string
	server *httptest.Server

	mu       sync.Mutex
	requests []Request
	paths    []string
	status   func(req Request) int
}

func newFakeService(t *testing.T, name string) *fakeService {
	t.Helper()
	f := &fakeService{name: name}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)

		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.paths = append(f.paths, r.URL.Path)
		status := http.StatusOK
		if f.status != nil {
			status = f.status(req)
		}
		f.mu.Unlock()

		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"service": %q, "slide_id": %q}`, f.name, req.SlideID)
	}))
	t.Cleanup(func() {
		f.server.CloseClientConnections()
		f.server.Close()
	})
	return f
}

func (f *fakeService) requestFor(slideID string) (Request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req.SlideID == slideID {
			return req, true
		}
	}
	return Request{}, false
}

func (f *fakeService) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeService) sawPath(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.paths {
		if p == path {
			return true
		}
	}
	return false
}

// routerConfig wires the builtin registry at the fake service URLs with a
// fast retry budget.
func routerConfig(t *testing.T, text, illustrator, analytics *fakeService) *config.Config {
	t.Helper()
	registry, err := config.LoadRegistry("")
	require.NoError(t, err)
	settings, err := config.LoadSettings()
	require.NoError(t, err)
	settings.MaxVertexRetries = 1
	settings.VertexRetryBaseDelaySeconds = 0
	settings.RateLimitDelaySeconds = 0
	settings.Stage6MaxParallel = 4
	settings.DisabledChartTypes = nil
	settings.TextServiceURL = text.server.URL
	settings.IllustratorServiceURL = illustrator.server.URL
	settings.AnalyticsServiceURL = analytics.server.URL
	return &config.Config{Settings: settings, Registry: registry}
}

func strPtr(s string) *string { return &s }

// contentStrawman covers all three services: three text slides (two of
// them heroes route to text as well), one illustrator slide and one
// analytics slide.
func contentStrawman() *models.PresentationStrawman {
	return &models.PresentationStrawman{
		MainTitle:      "Expansion Plan",
		OverallTheme:   "confident and data-driven",
		TargetAudience: "engineering leadership",
		Slides: []models.Slide{
			{
				SlideID: "slide_001", SlideNumber: 1, Title: "Expansion Plan",
				VariantID: "title_hero", SlideTypeClassification: "hero", LayoutID: models.LayoutHero,
			},
			{
				SlideID: "slide_002", SlideNumber: 2, Title: "Where We Stand",
				Narrative: "Summarize the current footprint.", KeyPoints: []string{"ARR at 4M", "12 regions live"},
				VisualsNeeded: strPtr("**Goal:** reinforce momentum **Content:** team photo collage **Style:** candid"),
				VariantID:     "bullet_list", SlideTypeClassification: "text", LayoutID: models.LayoutContent,
			},
			{
				SlideID: "slide_003", SlideNumber: 3, Title: "Revenue by Region",
				Narrative: "Compare regional revenue.", KeyPoints: []string{"EMEA leads", "APAC growing"},
				AnalyticsNeeded: strPtr("**Goal:** compare regions **Content:** revenue by region for FY25 **Style:** clean bars"),
				VariantID:       "bar_chart", SlideTypeClassification: "data", LayoutID: models.LayoutContent,
			},
			{
				SlideID: "slide_004", SlideNumber: 4, Title: "Priorities",
				Narrative: "Stack the priorities for next year.", KeyPoints: []string{"expand coverage", "retain accounts"},
				VariantID: "pyramid", SlideTypeClassification: "visual", LayoutID: models.LayoutContent,
			},
			{
				SlideID: "slide_005", SlideNumber: 5, Title: "Appendix",
				Narrative: "Full methodology notes.",
				VariantID: "single_column", SlideTypeClassification: "text", LayoutID: models.LayoutContent,
			},
		},
	}
}

func TestRouter_GenerateContent(t *testing.T) {
	t.Run("fans out and collates in input order", func(t *testing.T) {
		text := newFakeService(t, "text")
		illustrator := newFakeService(t, "illustrator")
		analytics := newFakeService(t, "analytics")
		router := NewRouter(routerConfig(t, text, illustrator, analytics), nil)

		var progress []int
		result := router.GenerateContent(context.Background(), "pres_abc", contentStrawman(), func(completed, total int) {
			assert.Equal(t, 5, total)
			progress = append(progress, completed)
		})

		require.Len(t, result.GeneratedSlides, 5)
		assert.Empty(t, result.FailedSlides)
		assert.Nil(t, result.Summary)
		assert.Equal(t, 5, result.Succeeded())
		assert.Equal(t, []int{1, 2, 3, 4, 5}, progress)

		wantServices := []string{"text", "text", "analytics", "illustrator", "text"}
		for i, generated := range result.GeneratedSlides {
			assert.False(t, generated.Failed)
			assert.Equal(t, i+1, generated.SlideNumber)
			assert.Equal(t, fmt.Sprintf("slide_%03d", i+1), generated.SlideID)
			assert.Equal(t, wantServices[i], generated.Service)
			require.NotNil(t, generated.Content)
			assert.Equal(t, wantServices[i], generated.Content["service"])
			assert.Equal(t, generated.SlideID, generated.Content["slide_id"])
		}

		assert.Equal(t, 3, text.requestCount())
		assert.Equal(t, 1, illustrator.requestCount())
		assert.Equal(t, 1, analytics.requestCount())
		assert.True(t, text.sawPath("/generate"))
		assert.True(t, illustrator.sawPath("/pyramid/generate"))
		assert.True(t, analytics.sawPath("/analytics/L02/bar"))

		textReq, ok := text.requestFor("slide_002")
		require.True(t, ok)
		assert.Equal(t, "pres_abc", textReq.PresentationID)
		require.NotNil(t, textReq.VisualsNeeded)
		assert.Contains(t, *textReq.VisualsNeeded, "team photo collage")
		assert.Empty(t, textReq.Topic)

		illReq, ok := illustrator.requestFor("slide_004")
		require.True(t, ok)
		assert.Equal(t, "Priorities", illReq.Topic)
		assert.Equal(t, "confident and data-driven", illReq.Tone)
		assert.Equal(t, "engineering leadership", illReq.Audience)
		assert.Equal(t, 3, illReq.ElementCount)

		anaReq, ok := analytics.requestFor("slide_003")
		require.True(t, ok)
		assert.Equal(t, "bar", anaReq.AnalyticsType)
		assert.Equal(t, "categorical", anaReq.DataShape)
		assert.Contains(t, anaReq.Brief, "revenue by region")
	})

	t.Run("a failing service never aborts the run", func(t *testing.T) {
		text := newFakeService(t, "text")
		text.status = func(Request) int { return http.StatusServiceUnavailable }
		illustrator := newFakeService(t, "illustrator")
		analytics := newFakeService(t, "analytics")
		router := NewRouter(routerConfig(t, text, illustrator, analytics), nil)

		var progress []int
		result := router.GenerateContent(context.Background(), "pres_abc", contentStrawman(), func(completed, _ int) {
			progress = append(progress, completed)
		})

		require.Len(t, result.GeneratedSlides, 5)
		assert.Equal(t, 2, result.Succeeded())
		assert.Len(t, progress, 5)

		require.Len(t, result.FailedSlides, 3)
		assert.Equal(t, "slide_001", result.FailedSlides[0].SlideID)
		assert.Equal(t, "slide_002", result.FailedSlides[1].SlideID)
		assert.Equal(t, "slide_005", result.FailedSlides[2].SlideID)
		for _, failure := range result.FailedSlides {
			assert.Equal(t, "text", failure.Service)
			assert.Equal(t, CategoryHTTP5xx, failure.Category)
			assert.Equal(t, http.StatusServiceUnavailable, failure.HTTPStatus)
			assert.Equal(t, 2, failure.Attempts)
		}

		for _, i := range []int{0, 1, 4} {
			assert.True(t, result.GeneratedSlides[i].Failed)
			assert.Nil(t, result.GeneratedSlides[i].Content)
		}
		assert.False(t, result.GeneratedSlides[2].Failed)
		assert.False(t, result.GeneratedSlides[3].Failed)

		require.NotNil(t, result.Summary)
		assert.Equal(t, 5, result.Summary.TotalSlides)
		assert.Equal(t, 3, result.Summary.FailedSlides)
		assert.Equal(t, 3, result.Summary.ByService["text"])
		assert.Equal(t, 3, result.Summary.ByCategory[CategoryHTTP5xx])
		require.NotEmpty(t, result.Summary.CriticalIssues)
		assert.Equal(t, SeverityHigh, result.Summary.CriticalIssues[0].Severity)
		assert.Equal(t, "text", result.Summary.CriticalIssues[0].Service)

		// Two attempts per failing slide.
		assert.Equal(t, 6, text.requestCount())
	})

	t.Run("disabled chart types are remapped before dispatch", func(t *testing.T) {
		text := newFakeService(t, "text")
		illustrator := newFakeService(t, "illustrator")
		analytics := newFakeService(t, "analytics")
		cfg := routerConfig(t, text, illustrator, analytics)
		cfg.Settings.DisabledChartTypes = []string{"bar_chart"}
		router := NewRouter(cfg, nil)

		strawman := contentStrawman()
		result := router.GenerateContent(context.Background(), "pres_abc", strawman, nil)

		require.Len(t, result.GeneratedSlides, 5)
		assert.Empty(t, result.FailedSlides)
		assert.Equal(t, "line_chart", result.GeneratedSlides[2].VariantID)
		assert.Equal(t, "bar_chart", strawman.Slides[2].VariantID)

		assert.True(t, analytics.sawPath("/analytics/L02/line"))
		assert.False(t, analytics.sawPath("/analytics/L02/bar"))
		anaReq, ok := analytics.requestFor("slide_003")
		require.True(t, ok)
		assert.Equal(t, "line_chart", anaReq.VariantID)
		assert.Equal(t, "time_series", anaReq.DataShape)
	})

	t.Run("unknown variant fails the slide without a dispatch", func(t *testing.T) {
		text := newFakeService(t, "text")
		illustrator := newFakeService(t, "illustrator")
		analytics := newFakeService(t, "analytics")
		router := NewRouter(routerConfig(t, text, illustrator, analytics), nil)

		strawman := &models.PresentationStrawman{
			Slides: []models.Slide{
				{SlideID: "slide_001", SlideNumber: 1, Title: "Odd", VariantID: "holographic_display"},
			},
		}
		result := router.GenerateContent(context.Background(), "pres_abc", strawman, nil)

		require.Len(t, result.GeneratedSlides, 1)
		assert.True(t, result.GeneratedSlides[0].Failed)
		require.Len(t, result.FailedSlides, 1)
		assert.Contains(t, result.FailedSlides[0].Err, "not in the registry")
		assert.Equal(t, 0, text.requestCount()+illustrator.requestCount()+analytics.requestCount())
	})

	t.Run("missing service client records a configuration failure", func(t *testing.T) {
		text := newFakeService(t, "text")
		illustrator := newFakeService(t, "illustrator")
		analytics := newFakeService(t, "analytics")
		cfg := routerConfig(t, text, illustrator, analytics)
		delete(cfg.Registry.Services, config.ServiceAnalytics)
		router := NewRouter(cfg, nil)

		result := router.GenerateContent(context.Background(), "pres_abc", contentStrawman(), nil)

		require.Len(t, result.FailedSlides, 1)
		assert.Equal(t, "slide_003", result.FailedSlides[0].SlideID)
		assert.Contains(t, result.FailedSlides[0].Err, `no client configured for service "analytics"`)
		assert.Equal(t, 0, analytics.requestCount())

		require.NotNil(t, result.Summary)
		require.NotEmpty(t, result.Summary.CriticalIssues)
		assert.Equal(t, SeverityHigh, result.Summary.CriticalIssues[0].Severity)
		require.NotEmpty(t, result.Summary.RecommendedActions)
		assert.Equal(t, "configure the analytics service client", result.Summary.RecommendedActions[0])
	})

	t.Run("parallelism stays within the configured bound", func(t *testing.T) {
		var mu sync.Mutex
		inFlight, maxInFlight := 0, 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(30 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			_, _ = w.Write([]byte(`{}`))
		}))
		t.Cleanup(func() {
			server.CloseClientConnections()
			server.Close()
		})

		registry, err := config.LoadRegistry("")
		require.NoError(t, err)
		settings, err := config.LoadSettings()
		require.NoError(t, err)
		settings.MaxVertexRetries = 0
		settings.VertexRetryBaseDelaySeconds = 0
		settings.Stage6MaxParallel = 2
		settings.TextServiceURL = server.URL
		settings.IllustratorServiceURL = server.URL
		settings.AnalyticsServiceURL = server.URL
		router := NewRouter(&config.Config{Settings: settings, Registry: registry}, nil)

		slides := make([]models.Slide, 6)
		for i := range slides {
			slides[i] = models.Slide{
				SlideID:     fmt.Sprintf("slide_%03d", i+1),
				SlideNumber: i + 1,
				Title:       "Point",
				VariantID:   "bullet_list",
			}
		}
		result := router.GenerateContent(context.Background(), "pres_abc", &models.PresentationStrawman{Slides: slides}, nil)

		assert.Equal(t, 6, result.Succeeded())
		mu.Lock()
		defer mu.Unlock()
		assert.LessOrEqual(t, maxInFlight, 2)
		assert.Greater(t, maxInFlight, 0)
	})

	t.Run("empty strawman returns an empty result", func(t *testing.T) {
		text := newFakeService(t, "text")
		illustrator := newFakeService(t, "illustrator")
		analytics := newFakeService(t, "analytics")
		router := NewRouter(routerConfig(t, text, illustrator, analytics), nil)

		called := false
		result := router.GenerateContent(context.Background(), "pres_abc", &models.PresentationStrawman{}, func(int, int) {
			called = true
		})

		assert.Empty(t, result.GeneratedSlides)
		assert.Empty(t, result.FailedSlides)
		assert.Nil(t, result.Summary)
		assert.False(t, called)
	})
}
