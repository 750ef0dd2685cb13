package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/models"
)

func testRegistry(t *testing.T) *config.Registry {
	t.Helper()
	reg, err := config.LoadRegistry("")
	require.NoError(t, err)
	return reg
}

func slide(n int, title, narrative, pref string) models.Slide {
	return models.Slide{
		SlideID:             models.SlideIDForNumber(n),
		SlideNumber:         n,
		Title:               title,
		Narrative:           narrative,
		StructurePreference: pref,
	}
}

func deck(audience string, slides ...models.Slide) *models.PresentationStrawman {
	return &models.PresentationStrawman{
		MainTitle:      "Quarterly Narrative",
		TargetAudience: audience,
		Slides:         slides,
	}
}

func variantIDs(s *models.PresentationStrawman) []string {
	ids := make([]string, len(s.Slides))
	for i, sl := range s.Slides {
		ids[i] = sl.VariantID
	}
	return ids
}

func TestClassifyFirstSlideIsTitleHero(t *testing.T) {
	reg := testRegistry(t)
	s := deck("engineers",
		slide(1, "Welcome", "", "bar chart of revenue"),
		slide(2, "Context", "why we are here", "simple bullets"),
		slide(3, "Wrap", "", ""),
	)

	ClassifySlides(reg, s)

	assert.Equal(t, "title_hero", s.Slides[0].VariantID, "position beats the structure preference on slide one")
	assert.Equal(t, models.LayoutHero, s.Slides[0].LayoutID)
	assert.Equal(t, "hero", s.Slides[0].SlideTypeClassification)
}

func TestClassifyExecutiveAudienceSecondSlide(t *testing.T) {
	reg := testRegistry(t)
	s := deck("Board of Directors",
		slide(1, "Welcome", "", ""),
		slide(2, "Where We Stand", "the quarter at a glance", "no particular shape"),
		slide(3, "Detail", "", "pyramid"),
		slide(4, "Wrap", "", ""),
	)

	ClassifySlides(reg, s)

	assert.Equal(t, "summary_grid", s.Slides[1].VariantID)
	assert.Equal(t, models.LayoutContent, s.Slides[1].LayoutID)
}

func TestClassifyExecutiveSecondSlideContradicted(t *testing.T) {
	reg := testRegistry(t)
	s := deck("investors",
		slide(1, "Welcome", "", ""),
		slide(2, "Milestones", "", "show a timeline"),
		slide(3, "Detail", "", "pyramid"),
		slide(4, "Wrap", "", ""),
	)

	ClassifySlides(reg, s)

	assert.Equal(t, "timeline", s.Slides[1].VariantID, "an explicit structure preference beats the position rule")
}

func TestClassifyNonExecutiveAudienceSkipsSummaryGrid(t *testing.T) {
	reg := testRegistry(t)
	s := deck("engineers",
		slide(1, "Welcome", "", ""),
		slide(2, "Notes", "assorted housekeeping notes", "whatever fits"),
		slide(3, "Wrap", "", ""),
	)

	ClassifySlides(reg, s)

	assert.Equal(t, "single_column", s.Slides[1].VariantID, "no keywords means the fallback")
	assert.Equal(t, models.LayoutContent, s.Slides[1].LayoutID)
}

func TestClassifyLastSlideClosingHero(t *testing.T) {
	reg := testRegistry(t)
	s := deck("engineers",
		slide(1, "Welcome", "", ""),
		slide(2, "Middle", "", "pyramid"),
		slide(3, "The End", "", ""),
	)

	ClassifySlides(reg, s)

	assert.Equal(t, "closing_hero", s.Slides[2].VariantID)
	assert.Equal(t, models.LayoutHero, s.Slides[2].LayoutID)
}

func TestClassifyLastSlideContradictedByPreference(t *testing.T) {
	reg := testRegistry(t)
	s := deck("engineers",
		slide(1, "Welcome", "", ""),
		slide(2, "Middle", "", "pyramid"),
		slide(3, "Next Steps", "", "simple bullets"),
	)

	ClassifySlides(reg, s)

	assert.Equal(t, "bullet_list", s.Slides[2].VariantID, "a content keyword in the preference overrides the closing hero")
}

func TestClassifySectionHeroByKeyword(t *testing.T) {
	reg := testRegistry(t)
	s := deck("engineers",
		slide(1, "Welcome", "", ""),
		slide(2, "Part Two", "", "section divider"),
		slide(3, "Detail", "", "pyramid"),
		slide(4, "Wrap", "", ""),
	)

	ClassifySlides(reg, s)

	assert.Equal(t, "section_hero", s.Slides[1].VariantID)
	assert.Equal(t, models.LayoutHero, s.Slides[1].LayoutID)
}

func TestClassifyKeywordPriorityAcrossFields(t *testing.T) {
	reg := testRegistry(t)
	s := deck("engineers",
		slide(1, "Welcome", "", ""),
		// "timeline" (priority 25) must beat "bullets" (priority 30)
		// even though both keywords appear.
		slide(2, "Plan", "a timeline rendered as bullets", ""),
		slide(3, "Trend", "", ""),
		slide(4, "Wrap", "", ""),
	)

	ClassifySlides(reg, s)

	assert.Equal(t, "timeline", s.Slides[1].VariantID)
	assert.Equal(t, "line_chart", s.Slides[2].VariantID, "title keywords count too")
}

func TestClassifyDiversitySubstitution(t *testing.T) {
	reg := testRegistry(t)
	s := deck("engineers",
		slide(1, "Welcome", "", ""),
		slide(2, "Sizing A", "", "pyramid"),
		slide(3, "Sizing B", "", "pyramid"),
		slide(4, "Sizing C", "", "pyramid"),
		slide(5, "Sizing D", "", "pyramid"),
		slide(6, "Sizing E", "", "pyramid"),
		slide(7, "Wrap", "", ""),
	)

	warnings := ClassifySlides(reg, s)

	// Slide 4 breaks the variant run with the nearest same-type variant
	// (funnel and process_flow are both 2 away; funnel wins the id tie).
	// Slide 5 would be the fourth visual in a row, so it switches type to
	// the nearest structured variant.
	assert.Equal(t, []string{
		"title_hero", "pyramid", "pyramid", "funnel", "grid_layout", "pyramid", "closing_hero",
	}, variantIDs(s))

	var diversity int
	for _, w := range warnings {
		if w.Rule == RuleDiversity {
			diversity++
		}
	}
	assert.Equal(t, 2, diversity)
}

func TestClassifyDiversityGroupExempt(t *testing.T) {
	reg := testRegistry(t)
	grouped := "**[GROUP: market sizing]** layered market view"
	s := deck("engineers",
		slide(1, "Welcome", "", ""),
		slide(2, "TAM", grouped, "pyramid"),
		slide(3, "SAM", grouped, "pyramid"),
		slide(4, "SOM", grouped, "pyramid"),
		slide(5, "Wrap", "", ""),
	)

	warnings := ClassifySlides(reg, s)

	assert.Equal(t, []string{"title_hero", "pyramid", "pyramid", "pyramid", "closing_hero"}, variantIDs(s))
	for _, w := range warnings {
		assert.NotEqual(t, RuleDiversity, w.Rule)
	}
}

func TestClassifyDiversityLockedSlidesStand(t *testing.T) {
	reg := testRegistry(t)
	s := deck("engineers",
		slide(1, "Welcome", "", ""),
		slide(2, "A", "", ""),
		slide(3, "B", "", ""),
		slide(4, "C", "", ""),
		slide(5, "Wrap", "", ""),
	)
	for i := 1; i <= 3; i++ {
		s.Slides[i].VariantID = "pyramid"
		s.Slides[i].VariantLocked = true
	}

	warnings := ClassifySlides(reg, s)

	assert.Equal(t, []string{"title_hero", "pyramid", "pyramid", "pyramid", "closing_hero"}, variantIDs(s))

	found := false
	for _, w := range warnings {
		if w.Rule == RuleDiversity && w.SlideID == "slide_004" {
			found = true
			assert.Contains(t, w.Detail, "locked")
		}
	}
	assert.True(t, found, "expected a diversity warning for the locked run")
}

func TestClassifySlideOverride(t *testing.T) {
	reg := testRegistry(t)
	s := deck("engineers",
		slide(1, "Welcome", "", ""),
		slide(2, "Compare", "", "matrix of tradeoffs"),
		slide(3, "Compare More", "", "matrix of tradeoffs"),
		slide(4, "Options", "", "simple bullets"),
		slide(5, "Wrap", "", ""),
	)
	ClassifySlides(reg, s)
	require.Equal(t, "bullet_list", s.Slides[3].VariantID)

	before := variantIDs(s)

	s.Slides[3].VariantID = "matrix_2x2"
	s.Slides[3].VariantLocked = true
	warnings := ClassifySlide(reg, s, 3)

	assert.Equal(t, "matrix_2x2", s.Slides[3].VariantID, "the override stands")
	assert.Equal(t, models.LayoutContent, s.Slides[3].LayoutID)
	assert.Equal(t, "structured", s.Slides[3].SlideTypeClassification)

	for i, id := range variantIDs(s) {
		if i == 3 {
			continue
		}
		assert.Equal(t, before[i], id, "slide %d must not change", i+1)
	}

	found := false
	for _, w := range warnings {
		if w.Rule == RuleDiversity && w.SlideID == "slide_004" {
			found = true
		}
	}
	assert.True(t, found, "the new run of three matrices should be reported")
}

func TestClassifyLockedUnknownVariantReclassifies(t *testing.T) {
	reg := testRegistry(t)
	s := deck("engineers",
		slide(1, "Welcome", "", ""),
		slide(2, "Plan", "", "show a timeline"),
		slide(3, "Wrap", "", ""),
	)
	s.Slides[1].VariantID = "holographic_display"
	s.Slides[1].VariantLocked = true

	warnings := ClassifySlides(reg, s)

	assert.Equal(t, "timeline", s.Slides[1].VariantID)
	assert.False(t, s.Slides[1].VariantLocked, "a dead lock is released")

	found := false
	for _, w := range warnings {
		if w.Rule == RuleOverride {
			found = true
			assert.Contains(t, w.Detail, "holographic_display")
		}
	}
	assert.True(t, found)
}

func TestRepairLayoutCorrectsMismatch(t *testing.T) {
	reg := testRegistry(t)
	s := models.Slide{
		SlideID:                 "slide_002",
		VariantID:               "pyramid",
		LayoutID:                models.LayoutHero,
		SlideTypeClassification: "visual",
	}

	warnings := repairLayout(reg, &s)

	require.Len(t, warnings, 1)
	assert.Equal(t, RuleLayout, warnings[0].Rule)
	assert.Equal(t, models.LayoutContent, s.LayoutID)
}

func TestClassifyEmptyDeck(t *testing.T) {
	reg := testRegistry(t)
	assert.Nil(t, ClassifySlides(reg, nil))
	assert.Nil(t, ClassifySlides(reg, &models.PresentationStrawman{}))
	assert.Nil(t, ClassifySlide(reg, &models.PresentationStrawman{}, 0))
}
