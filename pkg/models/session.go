package models

import "time"

// SessionState defines the dialog states a session moves through.
type SessionState string

const (
	// StateProvideGreeting is the entry state for a brand-new session.
	StateProvideGreeting SessionState = "PROVIDE_GREETING"
	// StateAskClarifyingQuestions gathers 3-5 topical questions from the user.
	StateAskClarifyingQuestions SessionState = "ASK_CLARIFYING_QUESTIONS"
	// StateCreateConfirmationPlan presents the plan with Accept/Reject actions.
	StateCreateConfirmationPlan SessionState = "CREATE_CONFIRMATION_PLAN"
	// StateGenerateStrawman produces and presents the draft outline.
	StateGenerateStrawman SessionState = "GENERATE_STRAWMAN"
	// StateRefineStrawman applies user-requested changes to the draft.
	StateRefineStrawman SessionState = "REFINE_STRAWMAN"
	// StateContentGeneration runs the parallel per-slide content services.
	StateContentGeneration SessionState = "CONTENT_GENERATION"
	// StateTerminal is reached after the final presentation URL is sent.
	StateTerminal SessionState = "TERMINAL"
)

// IsValid checks if the session state is one of the seven dialog states.
func (s SessionState) IsValid() bool {
	switch s {
	case StateProvideGreeting,
		StateAskClarifyingQuestions,
		StateCreateConfirmationPlan,
		StateGenerateStrawman,
		StateRefineStrawman,
		StateContentGeneration,
		StateTerminal:
		return true
	default:
		return false
	}
}

// Role identifies who authored a conversation entry or outbound message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid checks if the role is one of the two wire roles.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ContentVariant tags a history entry with the payload shape it was emitted
// as, so reconstruction can rebuild the same outbound messages later.
type ContentVariant string

const (
	// ContentText is a plain chat message (greeting, questions, answers).
	ContentText ContentVariant = "text"
	// ContentPlan is a confirmation plan followed by Accept/Reject actions.
	ContentPlan ContentVariant = "plan"
	// ContentStrawman marks the point where a strawman bundle was presented.
	ContentStrawman ContentVariant = "strawman"
	// ContentFinalURL is the terminal presentation URL message.
	ContentFinalURL ContentVariant = "final_url"
)

// ConversationEntry is one item of a session's ordered conversation log.
// Timestamps are strictly monotonic per session; Sequence breaks ties.
type ConversationEntry struct {
	MessageID      string         `json:"message_id"`
	Role           Role           `json:"role"`
	State          SessionState   `json:"state"`
	ContentVariant ContentVariant `json:"content_variant"`
	Content        string         `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
	Sequence       int            `json:"sequence"`
}

// Session is the per-client dialog record. It is created on first connect in
// PROVIDE_GREETING, mutated only by the state machine, persisted after every
// transition, and never deleted by the core (retention is the store's
// concern).
type Session struct {
	SessionID            string                `json:"session_id"`
	UserID               string                `json:"user_id"`
	CurrentState         SessionState          `json:"current_state"`
	ConversationHistory  []ConversationEntry   `json:"conversation_history"`
	Strawman             *PresentationStrawman `json:"presentation_strawman,omitempty"`
	FinalPresentationURL string                `json:"final_presentation_url,omitempty"`
	CreatedAt            time.Time             `json:"created_at"`
	UpdatedAt            time.Time             `json:"updated_at"`
}

// NewSession creates a fresh session in the greeting state.
func NewSession(sessionID, userID string) *Session {
	now := time.Now().UTC()
	return &Session{
		SessionID:    sessionID,
		UserID:       userID,
		CurrentState: StateProvideGreeting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NextSequence returns the sequence number for the next history entry.
func (s *Session) NextSequence() int {
	return len(s.ConversationHistory) + 1
}

// AppendEntry adds an entry to the in-memory history, skipping duplicates by
// message id (history is idempotent by MessageID).
func (s *Session) AppendEntry(entry ConversationEntry) {
	for _, existing := range s.ConversationHistory {
		if existing.MessageID == entry.MessageID {
			return
		}
	}
	s.ConversationHistory = append(s.ConversationHistory, entry)
}

// Clone returns a deep copy; mutations on the copy never reach the original.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.ConversationHistory = make([]ConversationEntry, len(s.ConversationHistory))
	copy(clone.ConversationHistory, s.ConversationHistory)
	clone.Strawman = s.Strawman.Clone()
	return &clone
}
