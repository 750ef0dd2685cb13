package models

import (
	"fmt"
	"regexp"
	"strings"
)

// Layout identifiers for the two layouts the renderer supports.
const (
	// LayoutContent is the standard content layout.
	LayoutContent = "L25"
	// LayoutHero is the full-bleed hero layout.
	LayoutHero = "L29"
)

// PresentationStrawman is the draft outline of the presentation before
// content generation.
type PresentationStrawman struct {
	MainTitle         string  `json:"main_title"`
	OverallTheme      string  `json:"overall_theme"`
	DesignSuggestions string  `json:"design_suggestions"`
	TargetAudience    string  `json:"target_audience"`
	DurationMinutes   int     `json:"duration_minutes"`
	PreviewURL        string  `json:"preview_url,omitempty"`
	PreviewID         string  `json:"preview_presentation_id,omitempty"`
	Slides            []Slide `json:"slides"`
}

// executiveAudienceTags trigger the executive-summary slide in position two.
var executiveAudienceTags = []string{"executive", "board", "investor", "c-suite"}

// ExecutiveAudience reports whether the target audience calls for an
// executive-summary grid as the second slide.
func (p *PresentationStrawman) ExecutiveAudience() bool {
	audience := strings.ToLower(p.TargetAudience)
	for _, tag := range executiveAudienceTags {
		if strings.Contains(audience, tag) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the strawman, including slide brief pointers.
func (p *PresentationStrawman) Clone() *PresentationStrawman {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Slides = make([]Slide, len(p.Slides))
	for i := range p.Slides {
		clone.Slides[i] = p.Slides[i].Clone()
	}
	return &clone
}

// Slide is a single entry of the strawman outline.
//
// The four brief fields are either nil or a string containing the three
// bolded sections Goal, Content and Style (see ParseBrief). The
// structure_preference text must contain at least one registry keyword.
type Slide struct {
	SlideID             string   `json:"slide_id"`
	SlideNumber         int      `json:"slide_number"`
	Title               string   `json:"title"`
	Narrative           string   `json:"narrative"`
	KeyPoints           []string `json:"key_points"`
	AnalyticsNeeded     *string  `json:"analytics_needed"`
	VisualsNeeded       *string  `json:"visuals_needed"`
	DiagramsNeeded      *string  `json:"diagrams_needed"`
	TablesNeeded        *string  `json:"tables_needed"`
	StructurePreference string   `json:"structure_preference"`

	// Assigned during classification.
	LayoutID                string `json:"layout_id,omitempty"`
	SlideTypeClassification string `json:"slide_type_classification,omitempty"`
	VariantID               string `json:"variant_id,omitempty"`
	// VariantLocked is set by an explicit variant override and pins the
	// variant through later re-classification passes.
	VariantLocked bool `json:"variant_locked,omitempty"`
}

// Clone returns a deep copy of the slide.
func (s Slide) Clone() Slide {
	clone := s
	clone.KeyPoints = append([]string(nil), s.KeyPoints...)
	clone.AnalyticsNeeded = cloneStringPtr(s.AnalyticsNeeded)
	clone.VisualsNeeded = cloneStringPtr(s.VisualsNeeded)
	clone.DiagramsNeeded = cloneStringPtr(s.DiagramsNeeded)
	clone.TablesNeeded = cloneStringPtr(s.TablesNeeded)
	return clone
}

func cloneStringPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// SlideIDForNumber formats the canonical slide id for a 1-based number,
// e.g. 3 becomes "slide_003".
func SlideIDForNumber(n int) string {
	return fmt.Sprintf("slide_%03d", n)
}

// RenumberSlides rewrites slide_number and slide_id so the sequence is
// 1-based and gap-free. Called after every create/delete refinement.
func RenumberSlides(slides []Slide) {
	for i := range slides {
		slides[i].SlideNumber = i + 1
		slides[i].SlideID = SlideIDForNumber(i + 1)
	}
}

// ValidateNumbering checks that slide numbers are {1..N} without gaps and
// that each slide_id matches its number.
func ValidateNumbering(slides []Slide) error {
	for i, slide := range slides {
		want := i + 1
		if slide.SlideNumber != want {
			return fmt.Errorf("slide at index %d has slide_number %d, want %d", i, slide.SlideNumber, want)
		}
		if slide.SlideID != SlideIDForNumber(want) {
			return fmt.Errorf("slide %d has slide_id %q, want %q", want, slide.SlideID, SlideIDForNumber(want))
		}
	}
	return nil
}

var groupMarkerRe = regexp.MustCompile(`\*\*\[GROUP:\s*([^\]]+)\]\*\*`)

// SemanticGroup extracts the group name from a **[GROUP: name]** marker in a
// slide narrative. Slides sharing a group are exempt from the diversity
// rule. Returns the empty string when no marker is present.
func SemanticGroup(narrative string) string {
	m := groupMarkerRe.FindStringSubmatch(narrative)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
