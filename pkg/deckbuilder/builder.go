// Package deckbuilder talks to the external deck-builder service that
// renders previews during the dialog and the final deck at the end.
// The orchestrator treats this service as best-effort: when it is
// disabled or failing, FallbackURL supplies the link emitted instead.
package deckbuilder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/generator"
	"github.com/deckhand-io/deckhand/pkg/models"
	"github.com/deckhand-io/deckhand/pkg/retry"
)

// ErrDisabled is returned when the deck builder is switched off or has no
// base URL. Callers skip the preview and fall back to a local URL.
var ErrDisabled = errors.New("deck builder is disabled")

// requestTimeout bounds one deck-builder call. Previews happen inside an
// interactive exchange, so there is no retry budget here.
const requestTimeout = 30 * time.Second

// maxErrorExcerpt caps the response body carried inside HTTP errors.
const maxErrorExcerpt = 256

// Preview is the deck builder's answer to a preview request.
type Preview struct {
	PresentationID string `json:"presentation_id"`
	URL            string `json:"url"`
}

// Final is the deck builder's answer to a finalize request.
type Final struct {
	URL string `json:"url"`
}

type previewRequest struct {
	Strawman *models.PresentationStrawman `json:"strawman"`
}

type finalizeRequest struct {
	PresentationID  string                       `json:"presentation_id,omitempty"`
	Strawman        *models.PresentationStrawman `json:"strawman"`
	GeneratedSlides []generator.GeneratedSlide   `json:"generated_slides"`
}

// Builder is the deck-builder HTTP client.
type Builder struct {
	enabled    bool
	baseURL    string
	localBase  string
	httpClient *http.Client
	logger     *slog.Logger
}

// New builds the client from settings. localBase is this server's own
// address, used for fallback URLs when no deck-builder URL is configured.
func New(settings *config.Settings) *Builder {
	host := settings.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return &Builder{
		enabled:    settings.PreviewBuilderEnabled,
		baseURL:    strings.TrimRight(settings.DeckBuilderURL, "/"),
		localBase:  fmt.Sprintf("http://%s:%s", host, settings.Port),
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     slog.Default(),
	}
}

// Enabled reports whether preview/finalize calls will be attempted.
func (b *Builder) Enabled() bool {
	return b.enabled && b.baseURL != ""
}

// CreatePreview renders a preview of the strawman. Called when the
// strawman is first produced and again after each refinement round.
func (b *Builder) CreatePreview(ctx context.Context, strawman *models.PresentationStrawman) (*Preview, error) {
	if !b.Enabled() {
		return nil, ErrDisabled
	}

	var preview Preview
	if err := b.post(ctx, "/presentations/preview", previewRequest{Strawman: strawman}, &preview); err != nil {
		return nil, err
	}
	b.logger.Info("Deck preview created",
		"presentation_id", preview.PresentationID,
		"url", preview.URL)
	return &preview, nil
}

// Finalize renders the finished deck from the strawman and the generated
// slide content.
func (b *Builder) Finalize(ctx context.Context, strawman *models.PresentationStrawman, generated []generator.GeneratedSlide) (*Final, error) {
	if !b.Enabled() {
		return nil, ErrDisabled
	}

	req := finalizeRequest{
		PresentationID:  strawman.PreviewID,
		Strawman:        strawman,
		GeneratedSlides: generated,
	}
	var final Final
	if err := b.post(ctx, "/presentations/finalize", req, &final); err != nil {
		return nil, err
	}
	b.logger.Info("Deck finalized", "url", final.URL)
	return &final, nil
}

// FallbackURL derives the presentation link used when the deck builder is
// disabled or failed. An empty preview id gets a fresh one.
func (b *Builder) FallbackURL(previewID string) string {
	base := b.baseURL
	if base == "" {
		base = b.localBase
	}
	if previewID == "" {
		previewID = uuid.NewString()
	}
	return fmt.Sprintf("%s/presentations/%s", base, previewID)
}

func (b *Builder) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode deck builder request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create deck builder request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call deck builder: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read deck builder response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		excerpt := strings.TrimSpace(string(data))
		if len(excerpt) > maxErrorExcerpt {
			excerpt = excerpt[:maxErrorExcerpt] + "..."
		}
		return &retry.HTTPStatusError{StatusCode: resp.StatusCode, Body: excerpt}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode deck builder response: %w", err)
	}
	return nil
}
