package protocol

import "github.com/deckhand-io/deckhand/pkg/models"

// status_update status values.
const (
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// slide_update operations.
const (
	OperationFullUpdate    = "full_update"
	OperationPartialUpdate = "partial_update"
)

// SyncActionSkipHistory is the only sync_response action currently emitted.
// It acknowledges a connect with skip_history=true.
const SyncActionSkipHistory = "skip_history"

// Machine values clients submit when an action button is clicked. The
// intent router matches these before consulting the LLM.
const (
	ValueAcceptPlan        = "accept_plan"
	ValueRejectPlan        = "reject_plan"
	ValueAcceptStrawman    = "accept_strawman"
	ValueRequestRefinement = "request_refinement"
)

// ChatMessagePayload carries conversational text.
type ChatMessagePayload struct {
	Text string `json:"text"`
}

// Action is one clickable choice in an action_request. Clients render
// Label and submit Value.
type Action struct {
	Label         string `json:"label"`
	Value         string `json:"value"`
	Primary       bool   `json:"primary"`
	RequiresInput bool   `json:"requires_input"`
}

// ActionRequestPayload asks the client to render decision buttons.
type ActionRequestPayload struct {
	PromptText string   `json:"prompt_text,omitempty"`
	Actions    []Action `json:"actions"`
}

// SlideMetadata is the presentation-level block of a slide_update.
type SlideMetadata struct {
	MainTitle         string `json:"main_title"`
	OverallTheme      string `json:"overall_theme"`
	DesignSuggestions string `json:"design_suggestions"`
	TargetAudience    string `json:"target_audience"`
	DurationMinutes   int    `json:"duration_minutes"`
	PreviewURL        string `json:"preview_url,omitempty"`
	PreviewID         string `json:"preview_presentation_id,omitempty"`
}

// SlideUpdatePayload carries the strawman deck. full_update replaces the
// client's model; partial_update names the touched slides in
// AffectedSlides (slide ids).
type SlideUpdatePayload struct {
	Operation      string         `json:"operation"`
	Metadata       SlideMetadata  `json:"metadata"`
	Slides         []models.Slide `json:"slides"`
	AffectedSlides []string       `json:"affected_slides,omitempty"`
}

// Progress reports per-slide completion during content generation.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// StatusUpdatePayload signals long-running work to the client.
type StatusUpdatePayload struct {
	Status   string    `json:"status"` // generating, completed, error
	Text     string    `json:"text"`
	Progress *Progress `json:"progress,omitempty"`
}

// PresentationURLPayload delivers the final deck link.
type PresentationURLPayload struct {
	URL        string `json:"url"`
	SlideCount int    `json:"slide_count"`
	Title      string `json:"title"`
}

// SyncResponsePayload acknowledges a sync_request.
type SyncResponsePayload struct {
	Action       string              `json:"action"`
	CurrentState models.SessionState `json:"current_state"`
}
