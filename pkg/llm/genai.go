package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/deckhand-io/deckhand/pkg/retry"
)

// pacerKey serializes all model calls behind a single pacing key so
// concurrent sessions share one request-rate budget.
const pacerKey = "llm"

// GenAIClient implements Client on the Google GenAI API.
type GenAIClient struct {
	client   *genai.Client
	retryCfg retry.Config
	pacer    *retry.Pacer
}

// NewGenAIClient creates a client for the Google GenAI API. Every Generate
// call is retried with exponential backoff per retryCfg and paced behind
// the shared "llm" key.
func NewGenAIClient(ctx context.Context, apiKey string, retryCfg retry.Config, pacer *retry.Pacer) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	if retryCfg.Name == "" {
		retryCfg.Name = "llm"
	}

	return &GenAIClient{
		client:   client,
		retryCfg: retryCfg,
		pacer:    pacer,
	}, nil
}

// Generate implements Client.
func (c *GenAIClient) Generate(ctx context.Context, input *GenerateInput) (*Response, error) {
	if input.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	contents := buildContents(input.Messages)
	cfg := buildConfig(input)

	var out *Response
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context) error {
		if err := c.pacer.Wait(ctx, pacerKey); err != nil {
			return err
		}

		resp, err := c.client.Models.GenerateContent(ctx, input.Model, contents, cfg)
		if err != nil {
			return err
		}

		text := resp.Text()
		if text == "" {
			// Safety blocks and truncated candidates surface as empty
			// text with a nil error.
			return retry.Retryable(fmt.Errorf("model %s returned an empty response", input.Model))
		}

		out = &Response{Text: text}
		if resp.UsageMetadata != nil {
			out.Usage = Usage{
				InputTokens:  resp.UsageMetadata.PromptTokenCount,
				OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
				TotalTokens:  resp.UsageMetadata.TotalTokenCount,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close implements Client. The GenAI REST client holds no connections
// that need releasing.
func (c *GenAIClient) Close() error {
	return nil
}

// buildContents maps conversation messages onto GenAI contents. Assistant
// turns become the "model" role; system turns fold into the user role
// because the system prompt travels separately as the system instruction.
func buildContents(messages []ConversationMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := genai.Role(genai.RoleUser)
		if msg.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return contents
}

// buildConfig maps GenerateInput knobs onto the GenAI request config.
func buildConfig(input *GenerateInput) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:      input.Temperature,
		MaxOutputTokens:  input.MaxTokens,
		ResponseMIMEType: input.ResponseMIMEType,
	}
	if input.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: input.SystemPrompt}},
		}
	}
	return cfg
}
