package dialog

import (
	"fmt"
	"strings"

	"github.com/deckhand-io/deckhand/pkg/classifier"
	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/models"
)

// applyResult is the outcome of one refinement round.
type applyResult struct {
	// AffectedSlideIDs are the canonical ids (post-renumber) of slides an
	// operation touched, for the partial_update frame.
	AffectedSlideIDs []string
	// OverridesOnly is true when every operation was a variant override;
	// the deck structure is unchanged and a partial_update suffices.
	OverridesOnly bool
	Warnings      []classifier.Warning
}

// applyOperations applies a refinement operation list to the strawman in
// place. Operations apply in listed order against the numbering current
// at that point; CREATE and DELETE renumber immediately, so later
// operations address the shifted deck. After all operations the deck is
// re-classified: per-slide when only variant overrides were applied,
// otherwise in full (locked slides stay pinned).
func applyOperations(reg *config.Registry, strawman *models.PresentationStrawman, ops []Operation) (*applyResult, error) {
	touched := make(map[int]bool) // indexes into strawman.Slides, kept current
	overridesOnly := true

	shift := func(from int, delta int) {
		next := make(map[int]bool, len(touched))
		for idx := range touched {
			if idx >= from {
				if idx+delta >= 0 {
					next[idx+delta] = true
				}
			} else {
				next[idx] = true
			}
		}
		touched = next
	}

	for i, op := range ops {
		switch op.Op {
		case OpUpdate:
			overridesOnly = false
			idx := op.SlideNumber - 1
			if idx < 0 || idx >= len(strawman.Slides) {
				return nil, fmt.Errorf("operation %d updates slide %d, deck has %d", i+1, op.SlideNumber, len(strawman.Slides))
			}
			if err := applyFields(&strawman.Slides[idx], op.Fields); err != nil {
				return nil, fmt.Errorf("operation %d: %w", i+1, err)
			}
			touched[idx] = true

		case OpCreate:
			overridesOnly = false
			if op.Slide == nil {
				return nil, fmt.Errorf("operation %d creates a slide without slide content", i+1)
			}
			idx := op.SlideNumber - 1
			if idx < 0 || idx > len(strawman.Slides) {
				idx = len(strawman.Slides)
			}
			slide := op.Slide.Clone()
			strawman.Slides = append(strawman.Slides, models.Slide{})
			copy(strawman.Slides[idx+1:], strawman.Slides[idx:])
			strawman.Slides[idx] = slide
			models.RenumberSlides(strawman.Slides)
			shift(idx, 1)
			touched[idx] = true

		case OpDelete:
			overridesOnly = false
			idx := op.SlideNumber - 1
			if idx < 0 || idx >= len(strawman.Slides) {
				return nil, fmt.Errorf("operation %d deletes slide %d, deck has %d", i+1, op.SlideNumber, len(strawman.Slides))
			}
			strawman.Slides = append(strawman.Slides[:idx], strawman.Slides[idx+1:]...)
			models.RenumberSlides(strawman.Slides)
			delete(touched, idx)
			shift(idx+1, -1)

		case OpVariantOverride:
			idx := op.SlideNumber - 1
			if idx < 0 || idx >= len(strawman.Slides) {
				return nil, fmt.Errorf("operation %d overrides slide %d, deck has %d", i+1, op.SlideNumber, len(strawman.Slides))
			}
			if !reg.Has(op.VariantID) {
				return nil, fmt.Errorf("operation %d requests unknown variant %q", i+1, op.VariantID)
			}
			slide := &strawman.Slides[idx]
			if err := applyFields(slide, op.Fields); err != nil {
				return nil, fmt.Errorf("operation %d: %w", i+1, err)
			}
			slide.VariantID = op.VariantID
			slide.VariantLocked = true
			touched[idx] = true
		}
	}

	if len(strawman.Slides) == 0 {
		return nil, fmt.Errorf("refinement removed every slide")
	}
	models.RenumberSlides(strawman.Slides)

	result := &applyResult{OverridesOnly: overridesOnly}
	if overridesOnly {
		for idx := range touched {
			if idx < len(strawman.Slides) {
				result.Warnings = append(result.Warnings, classifier.ClassifySlide(reg, strawman, idx)...)
			}
		}
	} else {
		result.Warnings = classifier.ClassifySlides(reg, strawman)
	}

	for idx := range touched {
		if idx < len(strawman.Slides) {
			result.AffectedSlideIDs = append(result.AffectedSlideIDs, strawman.Slides[idx].SlideID)
		}
	}
	return result, nil
}

// applyFields writes UPDATE field values onto a slide. Unknown fields are
// an error so a mistyped model response cannot silently no-op.
func applyFields(slide *models.Slide, fields map[string]any) error {
	for name, value := range fields {
		switch name {
		case "title":
			s, err := stringField(name, value)
			if err != nil {
				return err
			}
			slide.Title = s
		case "narrative":
			s, err := stringField(name, value)
			if err != nil {
				return err
			}
			slide.Narrative = s
		case "structure_preference":
			s, err := stringField(name, value)
			if err != nil {
				return err
			}
			slide.StructurePreference = s
		case "key_points":
			points, err := stringSliceField(name, value)
			if err != nil {
				return err
			}
			slide.KeyPoints = points
		case "analytics_needed":
			slide.AnalyticsNeeded = optionalStringField(value)
		case "visuals_needed":
			slide.VisualsNeeded = optionalStringField(value)
		case "diagrams_needed":
			slide.DiagramsNeeded = optionalStringField(value)
		case "tables_needed":
			slide.TablesNeeded = optionalStringField(value)
		default:
			return fmt.Errorf("unknown slide field %q", name)
		}
	}
	return nil
}

func stringField(name string, value any) (string, error) {
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", name)
	}
	return s, nil
}

func stringSliceField(name string, value any) ([]string, error) {
	raw, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("field %q must be a list of strings", name)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("field %q must be a list of strings", name)
		}
		out = append(out, strings.TrimSpace(s))
	}
	return out, nil
}

func optionalStringField(value any) *string {
	if value == nil {
		return nil
	}
	if s, ok := value.(string); ok && s != "" {
		return &s
	}
	return nil
}
