package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deckhand-io/deckhand/pkg/models"
)

// Prompt text shown with the recurring decision points.
const (
	planPromptText     = "Does this plan look right?"
	strawmanPromptText = "How does this structure look?"
)

// Timestamp renders t in the wire format: UTC RFC3339 with a trailing Z.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Packager builds outbound envelopes for one session. message_id is fresh
// per frame; the timestamp defaults to build time, and history
// reconstruction overrides it with the stored entry timestamp.
type Packager struct {
	sessionID   string
	streamlined bool
	now         func() time.Time
}

// NewPackager creates a packager for a session. streamlined selects the
// Stage 4/5 bundle shape (slide_update frames vs. a legacy text outline).
func NewPackager(sessionID string, streamlined bool) *Packager {
	return &Packager{
		sessionID:   sessionID,
		streamlined: streamlined,
		now:         time.Now,
	}
}

func (p *Packager) envelope(t MessageType, role models.Role, payload any) *Message {
	return &Message{
		MessageID: uuid.NewString(),
		SessionID: p.sessionID,
		Timestamp: Timestamp(p.now()),
		Type:      t,
		Role:      role,
		Payload:   payload,
	}
}

// ChatMessage builds an assistant chat_message frame.
func (p *Packager) ChatMessage(text string) *Message {
	return p.envelope(TypeChatMessage, models.RoleAssistant, ChatMessagePayload{Text: text})
}

// UserChatMessage builds a user-attributed chat_message. Only history
// reconstruction emits these; live user input never echoes back.
func (p *Packager) UserChatMessage(text string) *Message {
	return p.envelope(TypeChatMessage, models.RoleUser, ChatMessagePayload{Text: text})
}

// ActionRequest builds an action_request frame.
func (p *Packager) ActionRequest(promptText string, actions []Action) *Message {
	return p.envelope(TypeActionRequest, models.RoleAssistant, ActionRequestPayload{
		PromptText: promptText,
		Actions:    actions,
	})
}

// PlanActionRequest builds the plan decision buttons.
func (p *Packager) PlanActionRequest() *Message {
	return p.ActionRequest(planPromptText, PlanActions())
}

// StrawmanActionRequest builds the strawman decision buttons.
func (p *Packager) StrawmanActionRequest() *Message {
	return p.ActionRequest(strawmanPromptText, StrawmanActions())
}

// StatusUpdate builds a status_update frame.
func (p *Packager) StatusUpdate(status, text string, progress *Progress) *Message {
	return p.envelope(TypeStatusUpdate, models.RoleAssistant, StatusUpdatePayload{
		Status:   status,
		Text:     text,
		Progress: progress,
	})
}

// PresentationURL builds the final presentation_url frame.
func (p *Packager) PresentationURL(url string, slideCount int, title string) *Message {
	return p.envelope(TypePresentationURL, models.RoleAssistant, PresentationURLPayload{
		URL:        url,
		SlideCount: slideCount,
		Title:      title,
	})
}

// SyncResponse acknowledges a skip_history connect.
func (p *Packager) SyncResponse(state models.SessionState) *Message {
	return p.envelope(TypeSyncResponse, models.RoleAssistant, SyncResponsePayload{
		Action:       SyncActionSkipHistory,
		CurrentState: state,
	})
}

// SlideUpdate builds a full_update frame from the strawman.
func (p *Packager) SlideUpdate(strawman *models.PresentationStrawman) *Message {
	return p.envelope(TypeSlideUpdate, models.RoleAssistant, SlideUpdatePayload{
		Operation: OperationFullUpdate,
		Metadata:  metadataFrom(strawman),
		Slides:    copySlides(strawman),
	})
}

// PartialSlideUpdate builds a partial_update frame naming the touched
// slide ids. The full slide list still rides along so clients can rebuild
// without tracking deltas.
func (p *Packager) PartialSlideUpdate(strawman *models.PresentationStrawman, affected []string) *Message {
	return p.envelope(TypeSlideUpdate, models.RoleAssistant, SlideUpdatePayload{
		Operation:      OperationPartialUpdate,
		Metadata:       metadataFrom(strawman),
		Slides:         copySlides(strawman),
		AffectedSlides: affected,
	})
}

// StrawmanBundle renders the ordered Stage 4/5 message sequence:
// slide_update, then a preview chat_message when a preview URL exists,
// then the Accept/Refine action_request. With the streamlined protocol
// disabled the legacy shape is one chat_message carrying the text outline
// followed by the same action_request.
func (p *Packager) StrawmanBundle(strawman *models.PresentationStrawman) []*Message {
	if !p.streamlined {
		return []*Message{
			p.ChatMessage(renderOutline(strawman)),
			p.StrawmanActionRequest(),
		}
	}

	msgs := []*Message{p.SlideUpdate(strawman)}
	if strawman.PreviewURL != "" {
		msgs = append(msgs, p.ChatMessage(previewText(strawman.PreviewURL)))
	}
	return append(msgs, p.StrawmanActionRequest())
}

// PreviewChat builds the chat_message announcing a preview link.
func (p *Packager) PreviewChat(url string) *Message {
	return p.ChatMessage(previewText(url))
}

// PlanActions returns the plan decision buttons.
func PlanActions() []Action {
	return []Action{
		{Label: "Yes, let's build it!", Value: ValueAcceptPlan, Primary: true},
		{Label: "I'd like to make changes", Value: ValueRejectPlan, RequiresInput: true},
	}
}

// StrawmanActions returns the strawman decision buttons.
func StrawmanActions() []Action {
	return []Action{
		{Label: "Looks good, generate the content!", Value: ValueAcceptStrawman, Primary: true},
		{Label: "I'd like to refine it", Value: ValueRequestRefinement, RequiresInput: true},
	}
}

func metadataFrom(strawman *models.PresentationStrawman) SlideMetadata {
	return SlideMetadata{
		MainTitle:         strawman.MainTitle,
		OverallTheme:      strawman.OverallTheme,
		DesignSuggestions: strawman.DesignSuggestions,
		TargetAudience:    strawman.TargetAudience,
		DurationMinutes:   strawman.DurationMinutes,
		PreviewURL:        strawman.PreviewURL,
		PreviewID:         strawman.PreviewID,
	}
}

func copySlides(strawman *models.PresentationStrawman) []models.Slide {
	out := make([]models.Slide, len(strawman.Slides))
	for i := range strawman.Slides {
		out[i] = strawman.Slides[i].Clone()
	}
	return out
}

func previewText(url string) string {
	return fmt.Sprintf("Your live preview is ready: %s", url)
}

// renderOutline formats the legacy text representation of a strawman for
// clients on the pre-slide_update protocol.
func renderOutline(strawman *models.PresentationStrawman) string {
	var b strings.Builder
	b.WriteString(strawman.MainTitle)
	if strawman.OverallTheme != "" {
		fmt.Fprintf(&b, "\nTheme: %s", strawman.OverallTheme)
	}
	for i := range strawman.Slides {
		slide := &strawman.Slides[i]
		fmt.Fprintf(&b, "\n\n%d. %s", slide.SlideNumber, slide.Title)
		for _, point := range slide.KeyPoints {
			fmt.Fprintf(&b, "\n   - %s", point)
		}
	}
	return b.String()
}
