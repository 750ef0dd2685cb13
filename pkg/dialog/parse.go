package dialog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/deckhand-io/deckhand/pkg/models"
)

// ErrNoJSON is returned when a model response contains no JSON object.
var ErrNoJSON = errors.New("no JSON object in model response")

// ExtractJSON pulls the first balanced JSON object out of a model
// response. Markdown code fences and trailing prose are tolerated; the
// scanner honors string literals so braces inside values do not confuse
// the balance count.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%w: unbalanced braces", ErrNoJSON)
}

// parseStrawman decodes a model response into a normalized strawman:
// slides renumbered gap-free with canonical ids, key points trimmed, and
// basic shape checks applied.
func parseStrawman(text string) (*models.PresentationStrawman, error) {
	doc, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var strawman models.PresentationStrawman
	if err := json.Unmarshal([]byte(doc), &strawman); err != nil {
		return nil, fmt.Errorf("decode strawman: %w", err)
	}

	if strawman.MainTitle == "" {
		return nil, fmt.Errorf("strawman has no main_title")
	}
	if len(strawman.Slides) == 0 {
		return nil, fmt.Errorf("strawman has no slides")
	}
	for i := range strawman.Slides {
		slide := &strawman.Slides[i]
		if slide.Title == "" {
			return nil, fmt.Errorf("slide %d has no title", i+1)
		}
		for j, point := range slide.KeyPoints {
			slide.KeyPoints[j] = strings.TrimSpace(point)
		}
	}

	models.RenumberSlides(strawman.Slides)
	return &strawman, nil
}

// Refinement operation kinds.
const (
	OpUpdate          = "UPDATE"
	OpCreate          = "CREATE"
	OpDelete          = "DELETE"
	OpVariantOverride = "VARIANT_OVERRIDE"
)

// Operation is one refinement edit returned by the model.
type Operation struct {
	Op          string          `json:"op"`
	SlideNumber int             `json:"slide_number"`
	Slide       *models.Slide   `json:"slide,omitempty"`
	Fields      map[string]any  `json:"fields,omitempty"`
	VariantID   string          `json:"variant_id,omitempty"`
}

type operationsDoc struct {
	Operations []Operation `json:"operations"`
}

// parseOperations decodes the refinement operations from a model
// response. Unknown op kinds are an error; the edit must not be applied
// half-understood.
func parseOperations(text string) ([]Operation, error) {
	doc, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var parsed operationsDoc
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return nil, fmt.Errorf("decode operations: %w", err)
	}
	if len(parsed.Operations) == 0 {
		return nil, fmt.Errorf("model returned no operations")
	}

	for i, op := range parsed.Operations {
		switch op.Op {
		case OpUpdate, OpCreate, OpDelete, OpVariantOverride:
		default:
			return nil, fmt.Errorf("operation %d has unknown op %q", i+1, op.Op)
		}
	}
	return parsed.Operations, nil
}
