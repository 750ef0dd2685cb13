// Package intent maps user replies onto the closed intent set of the
// current dialog state.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/deckhand-io/deckhand/pkg/llm"
	"github.com/deckhand-io/deckhand/pkg/models"
)

// Intent identifies how the dialog machine should treat a user reply.
type Intent string

const (
	// IntentProvideInput carries free text into the greeting and
	// clarifying-question stages.
	IntentProvideInput Intent = "provide_input"
	// IntentAcceptPlan confirms the presentation plan.
	IntentAcceptPlan Intent = "accept_plan"
	// IntentRejectPlan asks for plan changes.
	IntentRejectPlan Intent = "reject_plan"
	// IntentAcceptStrawman approves the slide structure.
	IntentAcceptStrawman Intent = "accept_strawman"
	// IntentRequestRefinement asks for structural changes.
	IntentRequestRefinement Intent = "request_refinement"
	// IntentVariantOverride pins a named slide to a specific variant.
	IntentVariantOverride Intent = "variant_override"
	// IntentFreeFormEdit is an unstructured edit instruction. It is also
	// the fallback for replies that cannot be classified.
	IntentFreeFormEdit Intent = "free_form_edit"
	// IntentAck acknowledges the finished presentation.
	IntentAck Intent = "ack"
	// IntentRestart begins a new presentation in the same session.
	IntentRestart Intent = "restart"
)

// allowedIntents returns the closed intent set for a state. States that
// accept arbitrary text have no set; their replies advance as
// provide_input.
func allowedIntents(state models.SessionState) []Intent {
	switch state {
	case models.StateCreateConfirmationPlan:
		return []Intent{IntentAcceptPlan, IntentRejectPlan}
	case models.StateGenerateStrawman, models.StateRefineStrawman:
		return []Intent{IntentAcceptStrawman, IntentRequestRefinement, IntentVariantOverride, IntentFreeFormEdit}
	case models.StateTerminal:
		return []Intent{IntentAck, IntentRestart}
	default:
		return nil
	}
}

// Router classifies user replies, consulting the model only when a reply
// is not an exact action value.
type Router struct {
	llm   llm.Client
	model string
}

// NewRouter creates a router that classifies with the given model.
func NewRouter(client llm.Client, model string) *Router {
	return &Router{llm: client, model: model}
}

// Classify resolves userText to an intent for the given state. Exact
// action values (button clicks) short-circuit without a model call.
// Unclassifiable replies and model failures both resolve to
// free_form_edit, the safe refinement default.
func (r *Router) Classify(ctx context.Context, state models.SessionState, userText string) Intent {
	switch state {
	case models.StateProvideGreeting, models.StateAskClarifyingQuestions:
		return IntentProvideInput
	}

	allowed := allowedIntents(state)
	if len(allowed) == 0 {
		return IntentProvideInput
	}

	trimmed := strings.TrimSpace(userText)
	for _, in := range allowed {
		if trimmed == string(in) {
			return in
		}
	}

	temp := float32(0.2)
	resp, err := r.llm.Generate(ctx, &llm.GenerateInput{
		Model:        r.model,
		SystemPrompt: classifyPrompt(state, allowed),
		Messages: []llm.ConversationMessage{
			{Role: llm.RoleUser, Content: trimmed},
		},
		Temperature: &temp,
	})
	if err != nil {
		slog.Warn("Intent classification failed, defaulting to free-form edit",
			"state", state,
			"error", err)
		return IntentFreeFormEdit
	}

	if in, ok := parseLabel(resp.Text, allowed); ok {
		return in
	}
	return IntentFreeFormEdit
}

// classifyPrompt builds the state-conditioned instruction for the model.
func classifyPrompt(state models.SessionState, allowed []Intent) string {
	labels := make([]string, len(allowed))
	for i, in := range allowed {
		labels[i] = string(in)
	}

	var b strings.Builder
	b.WriteString("You classify a user's reply in a presentation-building dialog.\n")
	fmt.Fprintf(&b, "Dialog stage: %s.\n", state)
	fmt.Fprintf(&b, "Reply with exactly one of these labels and nothing else: %s.\n", strings.Join(labels, ", "))

	switch state {
	case models.StateCreateConfirmationPlan:
		b.WriteString("accept_plan means the user is happy with the proposed plan. reject_plan means they want it changed.")
	case models.StateGenerateStrawman, models.StateRefineStrawman:
		b.WriteString("accept_strawman approves the slide structure. request_refinement asks for structural changes. variant_override asks for a specific chart or layout style on a named slide. free_form_edit is any other edit instruction.")
	case models.StateTerminal:
		b.WriteString("ack acknowledges the finished presentation. restart asks to begin a new one.")
	}
	return b.String()
}

// parseLabel finds the earliest allowed label in the model response,
// case-insensitively. Ties go to the order the labels were offered in.
func parseLabel(text string, allowed []Intent) (Intent, bool) {
	lower := strings.ToLower(text)
	best := -1
	var found Intent
	for _, in := range allowed {
		idx := strings.Index(lower, string(in))
		if idx >= 0 && (best < 0 || idx < best) {
			best = idx
			found = in
		}
	}
	if best < 0 {
		return "", false
	}
	return found, true
}
