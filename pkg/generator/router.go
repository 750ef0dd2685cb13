package generator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/models"
	"github.com/deckhand-io/deckhand/pkg/retry"
)

// Router fans a classified strawman out to the generator services. One
// client per registry service, shared across runs; the router itself is
// stateless and safe for concurrent use.
type Router struct {
	registry *config.Registry
	settings *config.Settings
	clients  map[string]*Client
	logger   *slog.Logger
}

// NewRouter builds one client per registry service. Base URLs come from
// the registry unless overridden per service via the environment; retry
// and pacing budgets come from settings.
func NewRouter(cfg *config.Config, pacer *retry.Pacer) *Router {
	retryCfg := retry.Config{
		MaxRetries: cfg.Settings.MaxVertexRetries,
		BaseDelay:  cfg.Settings.VertexRetryBaseDelay(),
	}

	clients := make(map[string]*Client, len(cfg.Registry.Services))
	for service, svcCfg := range cfg.Registry.Services {
		override := cfg.Settings.ServiceBaseURL(service)
		clients[service] = NewClient(service, svcCfg, override, retryCfg, pacer)
	}

	return &Router{
		registry: cfg.Registry,
		settings: cfg.Settings,
		clients:  clients,
		logger:   slog.Default(),
	}
}

// GenerateContent generates content for every slide of the strawman in
// parallel, bounded by STAGE6_MAX_PARALLEL. The returned GeneratedSlides
// slice is parallel to the input slide order; slides that fail keep their
// slot with Failed set and are also recorded in FailedSlides. A failing
// slide never aborts the run.
//
// onProgress, when non-nil, is invoked once per completed slide with the
// running completion count; invocations are serialized.
func (r *Router) GenerateContent(ctx context.Context, presentationID string, strawman *models.PresentationStrawman, onProgress func(completed, total int)) *Result {
	slides := strawman.Slides
	total := len(slides)
	result := &Result{GeneratedSlides: make([]GeneratedSlide, total)}
	if total == 0 {
		return result
	}

	limit := min(r.settings.Stage6MaxParallel, total)
	if limit < 1 {
		limit = 1
	}
	r.logger.Info("Content generation started",
		"presentation_id", presentationID,
		"slides", total,
		"max_parallel", limit)

	failures := make([]*SlideFailure, total)

	var (
		mu        sync.Mutex
		completed int
	)
	advance := func() {
		mu.Lock()
		defer mu.Unlock()
		completed++
		if onProgress != nil {
			onProgress(completed, total)
		}
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i := range slides {
		g.Go(func() error {
			generated, failure := r.generateOne(ctx, presentationID, strawman, &slides[i])
			result.GeneratedSlides[i] = generated
			failures[i] = failure
			advance()
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range failures {
		if f != nil {
			result.FailedSlides = append(result.FailedSlides, *f)
		}
	}
	result.Summary = BuildSummary(result.FailedSlides, total)

	r.logger.Info("Content generation finished",
		"presentation_id", presentationID,
		"succeeded", result.Succeeded(),
		"failed", len(result.FailedSlides))
	return result
}

// generateOne dispatches a single slide and normalizes every outcome to
// either a generated slide or a recorded failure.
func (r *Router) generateOne(ctx context.Context, presentationID string, strawman *models.PresentationStrawman, slide *models.Slide) (GeneratedSlide, *SlideFailure) {
	generated := GeneratedSlide{
		SlideNumber: slide.SlideNumber,
		SlideID:     slide.SlideID,
		VariantID:   slide.VariantID,
	}

	variant, ok := r.registry.VariantByID(slide.VariantID)
	if !ok {
		generated.Failed = true
		failure := newFailure(slide, "", "", fmt.Errorf("variant %q is not in the registry", slide.VariantID), 0)
		return generated, &failure
	}
	variant = r.remapDisabled(slide, variant)
	generated.VariantID = variant.VariantID
	generated.Service = variant.Service

	client, ok := r.clients[variant.Service]
	if !ok {
		generated.Failed = true
		failure := newFailure(slide, variant.Service, "", fmt.Errorf("no client configured for service %q", variant.Service), 0)
		return generated, &failure
	}

	endpoint, err := client.EndpointFor(variant)
	if err != nil {
		generated.Failed = true
		failure := newFailure(slide, variant.Service, "", err, 0)
		return generated, &failure
	}

	req := buildRequest(presentationID, strawman, slide, variant)
	content, attempts, err := client.Generate(ctx, endpoint, req)
	if err != nil {
		generated.Failed = true
		failure := newFailure(slide, variant.Service, endpoint, err, attempts)
		r.logger.Warn("Slide generation failed",
			"slide_id", slide.SlideID,
			"service", variant.Service,
			"category", failure.Category,
			"attempts", attempts,
			"error", err)
		return generated, &failure
	}

	generated.Content = content
	return generated, nil
}

// remapDisabled swaps a disabled chart variant for the configured
// fallback before dispatch. The original classification on the slide is
// left untouched; only the outgoing request changes.
func (r *Router) remapDisabled(slide *models.Slide, variant *config.Variant) *config.Variant {
	if !r.settings.ChartTypeDisabled(variant.VariantID) {
		return variant
	}
	fallback, ok := r.registry.VariantByID(r.settings.FallbackChartType)
	if !ok {
		r.logger.Warn("Fallback chart type missing from registry, keeping disabled variant",
			"slide_id", slide.SlideID,
			"variant_id", variant.VariantID,
			"fallback", r.settings.FallbackChartType)
		return variant
	}
	r.logger.Warn("Disabled chart type remapped",
		"slide_id", slide.SlideID,
		"from", variant.VariantID,
		"to", fallback.VariantID)
	return fallback
}

// buildRequest assembles the service envelope for one slide. Tracking
// fields are common; the extras depend on the service family.
func buildRequest(presentationID string, strawman *models.PresentationStrawman, slide *models.Slide, variant *config.Variant) *Request {
	req := &Request{
		PresentationID:      presentationID,
		SlideID:             slide.SlideID,
		SlideNumber:         slide.SlideNumber,
		VariantID:           variant.VariantID,
		SlideTitle:          slide.Title,
		Narrative:           slide.Narrative,
		KeyPoints:           slide.KeyPoints,
		StructurePreference: slide.StructurePreference,
	}

	switch variant.Service {
	case config.ServiceText:
		req.AnalyticsNeeded = slide.AnalyticsNeeded
		req.VisualsNeeded = slide.VisualsNeeded
		req.DiagramsNeeded = slide.DiagramsNeeded
		req.TablesNeeded = slide.TablesNeeded
	case config.ServiceIllustrator:
		req.Topic = slide.Title
		req.Tone = strawman.OverallTheme
		req.Audience = strawman.TargetAudience
		req.ElementCount = elementCount(variant, slide)
	case config.ServiceAnalytics:
		if variant.Params != nil {
			req.AnalyticsType = variant.Params.AnalyticsType
			req.DataShape = variant.Params.DataShape
		}
		if slide.AnalyticsNeeded != nil {
			req.Brief = *slide.AnalyticsNeeded
		}
	}
	return req
}

// elementCount derives the illustration element count from the slide's
// key points, clamped to the variant's bounds. Slides without key points
// get the variant's optimal count.
func elementCount(variant *config.Variant, slide *models.Slide) int {
	if variant.Params == nil || variant.Params.ElementCount == nil {
		return 0
	}
	ec := variant.Params.ElementCount
	n := len(slide.KeyPoints)
	if n == 0 {
		return ec.Optimal
	}
	if n < ec.Min {
		return ec.Min
	}
	if n > ec.Max {
		return ec.Max
	}
	return n
}
