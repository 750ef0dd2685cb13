// Package classifier assigns a layout, slide-type classification and
// variant to every strawman slide. It is a pure rule pipeline over the
// taxonomy registry: position overrides, then keyword priority, then the
// single-column fallback, followed by the diversity rule and a final
// layout repair. It performs no I/O.
package classifier

import (
	"fmt"

	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/models"
)

// Warning rules.
const (
	RuleDiversity = "diversity"
	RuleOverride  = "override"
	RuleLayout    = "layout"
)

// Warning is a non-blocking classification adjustment or rule violation.
// Warnings are surfaced to the caller; they never fail classification.
type Warning struct {
	SlideID string `json:"slide_id"`
	Rule    string `json:"rule"`
	Detail  string `json:"detail"`
}

// ClassifySlides classifies every slide in place and returns the warnings
// collected along the way. Slides with VariantLocked keep their variant;
// everything else may be reassigned, including by the diversity rule.
func ClassifySlides(reg *config.Registry, strawman *models.PresentationStrawman) []Warning {
	if strawman == nil || len(strawman.Slides) == 0 {
		return nil
	}

	var warnings []Warning
	for i := range strawman.Slides {
		warnings = append(warnings, classifyBase(reg, strawman, i)...)
	}
	warnings = append(warnings, scanDiversity(reg, strawman.Slides, true)...)
	for i := range strawman.Slides {
		warnings = append(warnings, repairLayout(reg, &strawman.Slides[i])...)
	}
	return warnings
}

// ClassifySlide re-classifies a single slide, the variant-override path.
// The rest of the deck is left untouched; diversity violations the change
// introduces are reported but nothing is substituted.
func ClassifySlide(reg *config.Registry, strawman *models.PresentationStrawman, index int) []Warning {
	if strawman == nil || index < 0 || index >= len(strawman.Slides) {
		return nil
	}

	warnings := classifyBase(reg, strawman, index)
	warnings = append(warnings, repairLayout(reg, &strawman.Slides[index])...)
	warnings = append(warnings, scanDiversity(reg, strawman.Slides, false)...)
	return warnings
}

// classifyBase runs position overrides, keyword priority and the fallback
// for one slide.
func classifyBase(reg *config.Registry, strawman *models.PresentationStrawman, i int) []Warning {
	slide := &strawman.Slides[i]
	n := len(strawman.Slides)

	if slide.VariantLocked && slide.VariantID != "" {
		if v, ok := reg.VariantByID(slide.VariantID); ok {
			apply(slide, v)
			return nil
		}
		warning := Warning{
			SlideID: slide.SlideID,
			Rule:    RuleOverride,
			Detail:  fmt.Sprintf("locked variant %q is not in the registry, reclassifying", slide.VariantID),
		}
		slide.VariantLocked = false
		slide.VariantID = ""
		return append([]Warning{warning}, classifyBase(reg, strawman, i)...)
	}

	pref := matchVariant(reg, slide.StructurePreference)

	// The first slide is always the title hero.
	if i == 0 {
		if v := reg.DefaultHeroVariant(); v != nil {
			apply(slide, v)
			return nil
		}
	}

	// Executive audiences get a summary grid in position two unless the
	// structure preference asks for something else.
	if i == 1 && strawman.ExecutiveAudience() && pref == nil {
		if v, ok := reg.VariantByID(config.SummaryGridVariantID); ok {
			apply(slide, v)
			return nil
		}
	}

	// A hero keyword in the structure preference wins its hero.
	if pref != nil && pref.IsHero() {
		apply(slide, pref)
		return nil
	}

	// The last slide closes on a hero unless the structure preference
	// names a content keyword.
	if i == n-1 && n >= 3 && pref == nil {
		if v, ok := reg.VariantByID(config.ClosingHeroVariantID); ok {
			apply(slide, v)
			return nil
		}
	}

	if v := matchVariant(reg, slideTexts(slide)...); v != nil {
		apply(slide, v)
		return nil
	}

	if v := reg.DefaultContentVariant(); v != nil {
		apply(slide, v)
	}
	return nil
}

// apply writes the variant's classification onto the slide.
func apply(slide *models.Slide, v *config.Variant) {
	slide.VariantID = v.VariantID
	slide.SlideTypeClassification = v.Classification.SlideType
	slide.LayoutID = v.Classification.LayoutID
}

// scanDiversity walks the deck enforcing the diversity rule on content
// slides: at most 2 consecutive slides share a variant and at most 3
// consecutive share a classification. A slide sharing a semantic group
// with its predecessor is exempt, as are locked slides; both still extend
// their neighbours' runs. With fix false the scan only reports.
func scanDiversity(reg *config.Registry, slides []models.Slide, fix bool) []Warning {
	var warnings []Warning
	variantRun := 0
	classRun := 0
	prevContent := false

	for i := range slides {
		slide := &slides[i]
		v, ok := reg.VariantByID(slide.VariantID)
		if !ok || v.IsHero() {
			variantRun, classRun, prevContent = 0, 0, false
			continue
		}

		if prevContent {
			if slide.VariantID == slides[i-1].VariantID {
				variantRun++
			} else {
				variantRun = 1
			}
			if slide.SlideTypeClassification == slides[i-1].SlideTypeClassification {
				classRun++
			} else {
				classRun = 1
			}
		} else {
			variantRun, classRun = 1, 1
		}
		prevContent = true

		variantViolation := variantRun > 2
		classViolation := classRun > 3
		if !variantViolation && !classViolation {
			continue
		}
		if sharesGroup(slides, i) {
			continue
		}

		if slide.VariantLocked {
			warnings = append(warnings, Warning{
				SlideID: slide.SlideID,
				Rule:    RuleDiversity,
				Detail:  fmt.Sprintf("locked variant %q extends a run of %d consecutive slides", slide.VariantID, variantRun),
			})
			continue
		}

		replacement := pickReplacement(reg, v, classViolation)
		if replacement == nil {
			warnings = append(warnings, Warning{
				SlideID: slide.SlideID,
				Rule:    RuleDiversity,
				Detail:  fmt.Sprintf("no alternative to %q in the registry, run stands", slide.VariantID),
			})
			continue
		}

		if !fix {
			warnings = append(warnings, Warning{
				SlideID: slide.SlideID,
				Rule:    RuleDiversity,
				Detail:  fmt.Sprintf("variant %q repeats beyond the diversity limit", slide.VariantID),
			})
			continue
		}

		warnings = append(warnings, Warning{
			SlideID: slide.SlideID,
			Rule:    RuleDiversity,
			Detail:  fmt.Sprintf("substituted %q for %q to break a run of %d", replacement.VariantID, slide.VariantID, variantRun),
		})
		apply(slide, replacement)

		variantRun = 1
		if slide.SlideTypeClassification != slides[i-1].SlideTypeClassification {
			classRun = 1
		}
	}
	return warnings
}

// sharesGroup reports whether slide i and its predecessor carry the same
// semantic group marker.
func sharesGroup(slides []models.Slide, i int) bool {
	if i == 0 {
		return false
	}
	group := models.SemanticGroup(slides[i].Narrative)
	return group != "" && group == models.SemanticGroup(slides[i-1].Narrative)
}

// pickReplacement chooses the substitution target: the nearest-priority
// content variant of the same slide type, falling back to any content
// variant. Breaking a classification run requires a different slide type.
// Priority ties resolve by ascending variant id.
func pickReplacement(reg *config.Registry, cur *config.Variant, needNewType bool) *config.Variant {
	if !needNewType {
		if v := nearestContent(reg, cur, true); v != nil {
			return v
		}
	}
	return nearestContent(reg, cur, false)
}

// nearestContent finds the content variant closest in priority to cur,
// excluding cur itself. With sameType true only variants sharing cur's
// slide type qualify; with false only variants of a different slide type.
func nearestContent(reg *config.Registry, cur *config.Variant, sameType bool) *config.Variant {
	var best *config.Variant
	var bestDist int
	for _, v := range reg.ContentVariants() {
		if v.VariantID == cur.VariantID {
			continue
		}
		if sameType != (v.Classification.SlideType == cur.Classification.SlideType) {
			continue
		}
		dist := v.Classification.Priority - cur.Classification.Priority
		if dist < 0 {
			dist = -dist
		}
		if best == nil || dist < bestDist || (dist == bestDist && v.VariantID < best.VariantID) {
			best, bestDist = v, dist
		}
	}
	return best
}

// repairLayout makes the slide's layout and classification agree with its
// variant. Unknown variants drop to the content default.
func repairLayout(reg *config.Registry, slide *models.Slide) []Warning {
	v, ok := reg.VariantByID(slide.VariantID)
	if !ok {
		def := reg.DefaultContentVariant()
		if def == nil {
			return nil
		}
		warning := Warning{
			SlideID: slide.SlideID,
			Rule:    RuleLayout,
			Detail:  fmt.Sprintf("unknown variant %q replaced with %q", slide.VariantID, def.VariantID),
		}
		apply(slide, def)
		return []Warning{warning}
	}

	if slide.LayoutID == v.Classification.LayoutID && slide.SlideTypeClassification == v.Classification.SlideType {
		return nil
	}
	warning := Warning{
		SlideID: slide.SlideID,
		Rule:    RuleLayout,
		Detail:  fmt.Sprintf("layout %q corrected to %q for variant %q", slide.LayoutID, v.Classification.LayoutID, v.VariantID),
	}
	apply(slide, v)
	return []Warning{warning}
}
