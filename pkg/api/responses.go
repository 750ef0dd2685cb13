package api

import (
	"time"

	"github.com/deckhand-io/deckhand/pkg/models"
)

// HealthCheck is one component's health verdict.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status  string                 `json:"status"`
	Version string                 `json:"version"`
	Checks  map[string]HealthCheck `json:"checks"`
}

// SessionResponse is the read-only session view served by
// GET /api/v1/sessions/:session_id. Conversation content stays off this
// endpoint; clients replay history over the WebSocket.
type SessionResponse struct {
	SessionID            string              `json:"session_id"`
	UserID               string              `json:"user_id"`
	CurrentState         models.SessionState `json:"current_state"`
	MessageCount         int                 `json:"message_count"`
	SlideCount           int                 `json:"slide_count"`
	HasStrawman          bool                `json:"has_strawman"`
	FinalPresentationURL string              `json:"final_presentation_url,omitempty"`
	CreatedAt            time.Time           `json:"created_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
}

// sessionResponse projects a session onto the read-only view.
func sessionResponse(session *models.Session) *SessionResponse {
	resp := &SessionResponse{
		SessionID:            session.SessionID,
		UserID:               session.UserID,
		CurrentState:         session.CurrentState,
		MessageCount:         len(session.ConversationHistory),
		HasStrawman:          session.Strawman != nil,
		FinalPresentationURL: session.FinalPresentationURL,
		CreatedAt:            session.CreatedAt,
		UpdatedAt:            session.UpdatedAt,
	}
	if session.Strawman != nil {
		resp.SlideCount = len(session.Strawman.Slides)
	}
	return resp
}
