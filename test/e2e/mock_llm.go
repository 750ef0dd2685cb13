package e2e

import (
	"context"
	"fmt"
	"sync"

	"github.com/deckhand-io/deckhand/pkg/llm"
)

// LLMScriptEntry defines a single scripted model response.
type LLMScriptEntry struct {
	Text  string
	Error error
}

// ScriptedLLMClient implements llm.Client with a sequential script. The
// dialog machine serializes calls per connection, so ordered consumption
// is deterministic; the mutex only guards against cross-goroutine reads
// from test assertions.
type ScriptedLLMClient struct {
	mu             sync.Mutex
	entries        []LLMScriptEntry
	index          int
	capturedInputs []*llm.GenerateInput
}

// NewScriptedLLMClient creates an empty scripted client.
func NewScriptedLLMClient() *ScriptedLLMClient {
	return &ScriptedLLMClient{}
}

// AddText appends text responses consumed in call order.
func (c *ScriptedLLMClient) AddText(texts ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, text := range texts {
		c.entries = append(c.entries, LLMScriptEntry{Text: text})
	}
}

// AddError appends a failing entry.
func (c *ScriptedLLMClient) AddError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, LLMScriptEntry{Error: err})
}

// Generate implements llm.Client.
func (c *ScriptedLLMClient) Generate(_ context.Context, input *llm.GenerateInput) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.capturedInputs = append(c.capturedInputs, input)
	if c.index >= len(c.entries) {
		return nil, fmt.Errorf("ScriptedLLMClient: no more entries (%d consumed)", c.index)
	}
	entry := c.entries[c.index]
	c.index++

	if entry.Error != nil {
		return nil, entry.Error
	}
	return &llm.Response{
		Text:  entry.Text,
		Usage: llm.Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}, nil
}

// Close implements llm.Client.
func (c *ScriptedLLMClient) Close() error { return nil }

// CallCount returns the total number of Generate calls made.
func (c *ScriptedLLMClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.capturedInputs)
}

// CapturedInputs returns a snapshot of every Generate input seen.
func (c *ScriptedLLMClient) CapturedInputs() []*llm.GenerateInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]*llm.GenerateInput, len(c.capturedInputs))
	copy(result, c.capturedInputs)
	return result
}
