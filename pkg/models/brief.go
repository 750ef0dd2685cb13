package models

import (
	"fmt"
	"regexp"
	"strings"
)

// StructuredBrief is the parsed form of a slide brief field: the three
// bolded sections the planning stage emits for analytics, visuals, diagrams
// and tables.
type StructuredBrief struct {
	Goal    string `json:"goal"`
	Content string `json:"content"`
	Style   string `json:"style"`
}

// briefSectionRe matches one bolded section header and captures its body up
// to the next bolded header or end of string. Accepts both "**Goal:**" and
// "**Goal**:" spellings.
func briefSectionRe(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?is)\*\*` + name + `:?\*\*:?\s*(.*?)\s*(?:\*\*|$)`)
}

var (
	goalRe    = briefSectionRe("Goal")
	contentRe = briefSectionRe("Content")
	styleRe   = briefSectionRe("Style")
)

// ParseBrief parses a brief field into its Goal/Content/Style sections.
// A nil field parses to (nil, nil). Any non-nil value that does not carry
// all three bolded sections is an error; briefs have no other valid shape.
func ParseBrief(field *string) (*StructuredBrief, error) {
	if field == nil {
		return nil, nil
	}
	raw := *field
	goal := goalRe.FindStringSubmatch(raw)
	content := contentRe.FindStringSubmatch(raw)
	style := styleRe.FindStringSubmatch(raw)
	if goal == nil || content == nil || style == nil {
		return nil, fmt.Errorf("brief missing bolded Goal/Content/Style sections: %q", briefExcerpt(raw))
	}
	return &StructuredBrief{
		Goal:    strings.TrimSpace(goal[1]),
		Content: strings.TrimSpace(content[1]),
		Style:   strings.TrimSpace(style[1]),
	}, nil
}

func briefExcerpt(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
