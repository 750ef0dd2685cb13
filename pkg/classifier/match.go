package classifier

import (
	"regexp"
	"strings"

	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/models"
)

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases text and splits it into alphanumeric words. Keyword
// matching works on these tokens so word boundaries are any
// non-alphanumeric character.
func tokenize(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

// containsPhrase reports whether the keyword's word sequence appears
// consecutively in the tokenized text. Multi-word keywords match as
// phrases.
func containsPhrase(textTokens []string, keyword string) bool {
	kw := tokenize(keyword)
	if len(kw) == 0 {
		return false
	}
	for i := 0; i+len(kw) <= len(textTokens); i++ {
		matched := true
		for j := range kw {
			if textTokens[i+j] != kw[j] {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// matchVariant returns the first variant, in ascending priority order,
// with a keyword found in any of the texts. Returns nil when nothing
// matches.
func matchVariant(reg *config.Registry, texts ...string) *config.Variant {
	tokenized := make([][]string, 0, len(texts))
	for _, text := range texts {
		if text == "" {
			continue
		}
		tokenized = append(tokenized, tokenize(text))
	}
	if len(tokenized) == 0 {
		return nil
	}

	for _, v := range reg.VariantsByPriority() {
		for _, kw := range v.Classification.Keywords {
			for _, tokens := range tokenized {
				if containsPhrase(tokens, kw) {
					return v
				}
			}
		}
	}
	return nil
}

// slideTexts lists the slide fields scanned for keywords, in scan order.
func slideTexts(slide *models.Slide) []string {
	texts := []string{slide.StructurePreference, slide.Narrative, slide.Title}
	texts = append(texts, slide.KeyPoints...)
	return texts
}
