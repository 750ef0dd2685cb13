package generator

import (
	"fmt"
	"sort"
	"strings"
)

// Severity levels for critical issues.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
)

// fiveXXBurstThreshold is the per-service 5xx count treated as a burst.
const fiveXXBurstThreshold = 3

// CriticalIssue is one failure pattern worth operator attention.
type CriticalIssue struct {
	Severity string `json:"severity"`
	Service  string `json:"service,omitempty"`
	Detail   string `json:"detail"`
}

// ErrorSummary aggregates the failures of one run.
type ErrorSummary struct {
	TotalSlides        int                     `json:"total_slides"`
	FailedSlides       int                     `json:"failed_slides"`
	ByCategory         map[FailureCategory]int `json:"by_category"`
	ByService          map[string]int          `json:"by_service"`
	ByEndpoint         map[string]int          `json:"by_endpoint"`
	CriticalIssues     []CriticalIssue         `json:"critical_issues,omitempty"`
	RecommendedActions []string                `json:"recommended_actions,omitempty"`
}

// BuildSummary aggregates failures by category, service and endpoint,
// tags critical issues and derives a prioritized, deduplicated action
// list. Returns nil when there were no failures.
func BuildSummary(failures []SlideFailure, attempted int) *ErrorSummary {
	if len(failures) == 0 {
		return nil
	}

	summary := &ErrorSummary{
		TotalSlides:  attempted,
		FailedSlides: len(failures),
		ByCategory:   make(map[FailureCategory]int),
		ByService:    make(map[string]int),
		ByEndpoint:   make(map[string]int),
	}

	fiveXXByService := make(map[string]int)
	missingClients := make(map[string]bool)
	for _, f := range failures {
		summary.ByCategory[f.Category]++
		summary.ByService[f.Service]++
		summary.ByEndpoint[f.Endpoint]++
		if f.Category == CategoryHTTP5xx {
			fiveXXByService[f.Service]++
		}
		if strings.Contains(f.Err, "no client configured") {
			missingClients[f.Service] = true
		}
	}

	for _, service := range sortedKeys(missingClients) {
		summary.CriticalIssues = append(summary.CriticalIssues, CriticalIssue{
			Severity: SeverityHigh,
			Service:  service,
			Detail:   fmt.Sprintf("no client configured for the %s service", service),
		})
	}
	burstServices := make(map[string]bool)
	for service, count := range fiveXXByService {
		if count >= fiveXXBurstThreshold {
			burstServices[service] = true
		}
	}
	for _, service := range sortedKeys(burstServices) {
		summary.CriticalIssues = append(summary.CriticalIssues, CriticalIssue{
			Severity: SeverityHigh,
			Service:  service,
			Detail:   fmt.Sprintf("%d server errors from the %s service in one run", fiveXXByService[service], service),
		})
	}
	if n := summary.ByCategory[CategoryTimeout]; n > 0 {
		summary.CriticalIssues = append(summary.CriticalIssues, CriticalIssue{
			Severity: SeverityMedium,
			Detail:   fmt.Sprintf("%d slide(s) timed out", n),
		})
	}
	if n := summary.ByCategory[CategoryHTTP4xx]; n > 0 {
		summary.CriticalIssues = append(summary.CriticalIssues, CriticalIssue{
			Severity: SeverityMedium,
			Detail:   fmt.Sprintf("%d slide(s) rejected with a client error", n),
		})
	}

	sort.SliceStable(summary.CriticalIssues, func(a, b int) bool {
		return severityRank(summary.CriticalIssues[a].Severity) < severityRank(summary.CriticalIssues[b].Severity)
	})

	summary.RecommendedActions = recommendedActions(summary.CriticalIssues, failures)
	return summary
}

// recommendedActions lists critical-issue remediations first, then the
// per-failure suggestions, deduplicated in order.
func recommendedActions(issues []CriticalIssue, failures []SlideFailure) []string {
	var actions []string
	seen := make(map[string]bool)
	add := func(action string) {
		if action == "" || seen[action] {
			return
		}
		seen[action] = true
		actions = append(actions, action)
	}

	for _, issue := range issues {
		if issue.Severity != SeverityHigh {
			continue
		}
		if strings.Contains(issue.Detail, "no client configured") {
			add(fmt.Sprintf("configure the %s service client", issue.Service))
		} else {
			add(fmt.Sprintf("investigate the %s service outage before regenerating", issue.Service))
		}
	}
	for _, f := range failures {
		add(f.SuggestedAction)
	}
	return actions
}

func severityRank(severity string) int {
	if severity == SeverityHigh {
		return 0
	}
	return 1
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
