package generator

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

	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/retry"
)

// ErrResponseValidation marks a response the generator service itself
// flagged as invalid. Never retried.
var ErrResponseValidation = errors.New("generated content failed validation")

// analyticsTypePlaceholder is substituted into typed endpoint paths.
const analyticsTypePlaceholder = "{analytics_type}"

// maxBodyExcerpt caps the response body carried inside HTTP errors.
const maxBodyExcerpt = 512

// Client calls one generator service over HTTP with retries and pacing.
type Client struct {
	service    string
	cfg        config.ServiceConfig
	baseURL    string
	retryCfg   retry.Config
	pacer      *retry.Pacer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds the client for one registry service. baseURLOverride,
// when non-empty, beats the registry base URL.
func NewClient(service string, cfg config.ServiceConfig, baseURLOverride string, retryCfg retry.Config, pacer *retry.Pacer) *Client {
	baseURL := cfg.BaseURL
	if baseURLOverride != "" {
		baseURL = baseURLOverride
	}
	return &Client{
		service:    service,
		cfg:        cfg,
		baseURL:    strings.TrimRight(baseURL, "/"),
		retryCfg:   retryCfg,
		pacer:      pacer,
		httpClient: &http.Client{},
		logger:     slog.Default(),
	}
}

// EndpointFor resolves the request path for a variant according to the
// service's endpoint pattern.
func (c *Client) EndpointFor(v *config.Variant) (string, error) {
	switch c.cfg.EndpointPattern {
	case config.PatternSingle:
		return c.cfg.Endpoint, nil
	case config.PatternPerVariant:
		if v.Endpoint == "" {
			return "", fmt.Errorf("variant %q has no endpoint for the per-variant service %q", v.VariantID, c.service)
		}
		return v.Endpoint, nil
	case config.PatternTyped:
		if v.Params == nil || v.Params.AnalyticsType == "" {
			return "", fmt.Errorf("variant %q has no analytics type for the typed service %q", v.VariantID, c.service)
		}
		return strings.ReplaceAll(v.Endpoint, analyticsTypePlaceholder, v.Params.AnalyticsType), nil
	}
	return "", fmt.Errorf("service %q has unsupported endpoint pattern %q", c.service, c.cfg.EndpointPattern)
}

// Generate performs one slide call. The returned attempt count includes
// the initial try; pacing applies to every attempt.
func (c *Client) Generate(ctx context.Context, endpoint string, req *Request) (map[string]any, int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s request: %w", c.service, err)
	}

	cfg := c.retryCfg
	cfg.Name = c.service + " " + endpoint

	var content map[string]any
	attempts := 0
	err = retry.Do(ctx, cfg, func(ctx context.Context) error {
		attempts++
		if err := c.pacer.Wait(ctx, c.service); err != nil {
			return err
		}
		result, err := c.doOnce(ctx, endpoint, body)
		if err != nil {
			return err
		}
		content = result
		return nil
	})
	if err != nil {
		return nil, attempts, err
	}
	return content, attempts, nil
}

// doOnce performs a single HTTP round trip under the service timeout.
func (c *Client) doOnce(ctx context.Context, endpoint string, body []byte) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.NonRetryable(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", c.service, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", c.service, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.HTTPStatusError{StatusCode: resp.StatusCode, Body: bodyExcerpt(data)}
	}

	var content map[string]any
	if err := json.Unmarshal(data, &content); err != nil {
		return nil, retry.NonRetryable(fmt.Errorf("decode %s response: %w", c.service, err))
	}

	if err := checkResponseValidation(content); err != nil {
		return nil, retry.NonRetryable(err)
	}
	return content, nil
}

// checkResponseValidation rejects responses carrying an explicit
// validation {valid: false} block, the illustrator's self-check.
func checkResponseValidation(content map[string]any) error {
	raw, ok := content["validation"]
	if !ok {
		return nil
	}
	validation, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	valid, ok := validation["valid"].(bool)
	if !ok || valid {
		return nil
	}

	issues := "unspecified issues"
	if list, ok := validation["issues"].([]any); ok && len(list) > 0 {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, fmt.Sprint(item))
		}
		issues = strings.Join(parts, "; ")
	}
	return fmt.Errorf("%w: %s", ErrResponseValidation, issues)
}

// bodyExcerpt trims a response body for inclusion in error messages.
func bodyExcerpt(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > maxBodyExcerpt {
		return s[:maxBodyExcerpt] + "..."
	}
	return s
}
