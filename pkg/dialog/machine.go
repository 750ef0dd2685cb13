// Package dialog drives the per-session conversation state machine: seven
// states from greeting to the terminal presentation URL. Each user message
// advances the machine one step; every transition is persisted before the
// reply is emitted, so a reconnecting client always sees a coherent
// history.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/deckhand-io/deckhand/pkg/classifier"
	"github.com/deckhand-io/deckhand/pkg/config"
	"github.com/deckhand-io/deckhand/pkg/deckbuilder"
	"github.com/deckhand-io/deckhand/pkg/generator"
	"github.com/deckhand-io/deckhand/pkg/intent"
	"github.com/deckhand-io/deckhand/pkg/llm"
	"github.com/deckhand-io/deckhand/pkg/models"
	"github.com/deckhand-io/deckhand/pkg/protocol"
	"github.com/deckhand-io/deckhand/pkg/store"
)

// EmitFunc delivers one outbound frame to the client, in call order.
type EmitFunc func(*protocol.Message) error

// ContentRouter is the Stage-6 scheduler contract the machine drives.
type ContentRouter interface {
	GenerateContent(ctx context.Context, presentationID string, strawman *models.PresentationStrawman, onProgress func(completed, total int)) *generator.Result
}

// DeckBuilder is the preview/finalize contract.
type DeckBuilder interface {
	Enabled() bool
	CreatePreview(ctx context.Context, strawman *models.PresentationStrawman) (*deckbuilder.Preview, error)
	Finalize(ctx context.Context, strawman *models.PresentationStrawman, generated []generator.GeneratedSlide) (*deckbuilder.Final, error)
	FallbackURL(previewID string) string
}

// Machine is the per-session dialog driver. One machine serves one
// connection; the connection handler serializes calls, so methods never
// run concurrently for the same session.
type Machine struct {
	cfg     *config.Config
	llm     llm.Client
	intents *intent.Router
	content ContentRouter
	builder DeckBuilder
	store   store.SessionStore
	logger  *slog.Logger
}

// NewMachine wires the machine to its collaborators. The store is
// per-connection (it may be a degraded-mode fallback); the rest are
// process-wide.
func NewMachine(cfg *config.Config, llmClient llm.Client, content ContentRouter, builder DeckBuilder, sessionStore store.SessionStore) *Machine {
	return &Machine{
		cfg:     cfg,
		llm:     llmClient,
		intents: intent.NewRouter(llmClient, cfg.Settings.Models.Intent),
		content: content,
		builder: builder,
		store:   sessionStore,
		logger:  slog.Default(),
	}
}

// packager builds the per-session frame packager.
func (m *Machine) packager(session *models.Session) *protocol.Packager {
	return protocol.NewPackager(session.SessionID, m.cfg.Settings.StreamlinedProtocol)
}

// Start runs the entry work for a freshly connected session. Only a
// brand-new session (greeting state, empty history) does anything; every
// other state waits for the next user message.
func (m *Machine) Start(ctx context.Context, session *models.Session, emit EmitFunc) error {
	if session.CurrentState != models.StateProvideGreeting || len(session.ConversationHistory) > 0 {
		return nil
	}
	if err := m.runGreeting(ctx, session, emit); err != nil {
		return m.surface(session, emit, err)
	}
	return nil
}

// HandleUserMessage advances the machine one step for an inbound user
// message. The user entry is persisted before any stage work; stage
// errors are surfaced to the client as a chat_message and leave the
// session in its current state.
func (m *Machine) HandleUserMessage(ctx context.Context, session *models.Session, text string, emit EmitFunc) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return emit(m.packager(session).ChatMessage("I didn't catch that - could you say it again?"))
	}

	in := m.intents.Classify(ctx, session.CurrentState, text)
	m.logger.Debug("User message classified",
		"session_id", session.SessionID,
		"state", session.CurrentState,
		"intent", in)

	userEntry := m.newEntry(session, models.RoleUser, models.ContentText, text)
	if err := m.persist(ctx, session, userEntry); err != nil {
		return m.surface(session, emit, err)
	}

	var err error
	switch session.CurrentState {
	case models.StateProvideGreeting:
		err = m.runQuestions(ctx, session, emit)

	case models.StateAskClarifyingQuestions:
		err = m.runPlan(ctx, session, emit)

	case models.StateCreateConfirmationPlan:
		if in == intent.IntentAcceptPlan {
			err = m.runStrawman(ctx, session, emit)
		} else {
			err = m.runQuestions(ctx, session, emit)
		}

	case models.StateGenerateStrawman, models.StateRefineStrawman:
		if in == intent.IntentAcceptStrawman {
			err = m.runContentGeneration(ctx, session, emit)
		} else {
			err = m.runRefinement(ctx, session, text, emit)
		}

	case models.StateContentGeneration:
		// A session can land here after a mid-generation disconnect; the
		// next message resumes the stage.
		err = m.runContentGeneration(ctx, session, emit)

	case models.StateTerminal:
		if in == intent.IntentRestart {
			err = m.runRestart(ctx, session, emit)
		} else {
			err = m.runTerminalAck(ctx, session, emit)
		}

	default:
		err = fmt.Errorf("session %s is in unknown state %q", session.SessionID, session.CurrentState)
	}

	if err != nil {
		return m.surface(session, emit, err)
	}
	return nil
}

// runGreeting emits the opening assistant message. The session stays in
// the greeting state until the user names a topic.
func (m *Machine) runGreeting(ctx context.Context, session *models.Session, emit EmitFunc) error {
	temp := float32(0.7)
	resp, err := m.llm.Generate(ctx, &llm.GenerateInput{
		Model:        m.cfg.Settings.Models.Greeting,
		SystemPrompt: greetingPrompt,
		Messages:     []llm.ConversationMessage{{Role: llm.RoleUser, Content: greetingOpener}},
		Temperature:  &temp,
	})
	if err != nil {
		return fmt.Errorf("greeting generation: %w", err)
	}

	entry := m.newEntry(session, models.RoleAssistant, models.ContentText, resp.Text)
	if err := m.persist(ctx, session, entry); err != nil {
		return err
	}
	return emit(m.packager(session).ChatMessage(resp.Text))
}

// runQuestions produces the clarifying questions and moves the session
// into the question state. It also serves the plan-rejection path, where
// the rejection feedback is already in the conversation.
func (m *Machine) runQuestions(ctx context.Context, session *models.Session, emit EmitFunc) error {
	temp := float32(0.4)
	resp, err := m.llm.Generate(ctx, &llm.GenerateInput{
		Model:        m.cfg.Settings.Models.Questions,
		SystemPrompt: questionsPrompt,
		Messages:     m.conversation(session),
		Temperature:  &temp,
	})
	if err != nil {
		return fmt.Errorf("question generation: %w", err)
	}

	session.CurrentState = models.StateAskClarifyingQuestions
	entry := m.newEntry(session, models.RoleAssistant, models.ContentText, resp.Text)
	if err := m.persist(ctx, session, entry); err != nil {
		return err
	}
	return emit(m.packager(session).ChatMessage(resp.Text))
}

// runPlan turns the gathered answers into a confirmation plan with
// Accept/Reject actions.
func (m *Machine) runPlan(ctx context.Context, session *models.Session, emit EmitFunc) error {
	temp := float32(0.4)
	resp, err := m.llm.Generate(ctx, &llm.GenerateInput{
		Model:        m.cfg.Settings.Models.Plan,
		SystemPrompt: planPrompt,
		Messages:     m.conversation(session),
		Temperature:  &temp,
	})
	if err != nil {
		return fmt.Errorf("plan generation: %w", err)
	}

	session.CurrentState = models.StateCreateConfirmationPlan
	entry := m.newEntry(session, models.RoleAssistant, models.ContentPlan, resp.Text)
	if err := m.persist(ctx, session, entry); err != nil {
		return err
	}

	p := m.packager(session)
	if err := emit(p.ChatMessage(resp.Text)); err != nil {
		return err
	}
	return emit(p.PlanActionRequest())
}

// runStrawman generates the draft outline, classifies it, requests an
// optional preview and presents the Stage 4 bundle.
func (m *Machine) runStrawman(ctx context.Context, session *models.Session, emit EmitFunc) error {
	temp := float32(0.3)
	resp, err := m.llm.Generate(ctx, &llm.GenerateInput{
		Model:            m.cfg.Settings.Models.Strawman,
		SystemPrompt:     strawmanSystemPrompt,
		Messages:         m.conversation(session),
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("strawman generation: %w", err)
	}

	strawman, err := parseStrawman(resp.Text)
	if err != nil {
		return fmt.Errorf("strawman parsing: %w", err)
	}

	warnings := classifier.ClassifySlides(m.cfg.Registry, strawman)
	m.logWarnings(session, warnings)

	m.refreshPreview(ctx, session, strawman)

	session.Strawman = strawman
	session.CurrentState = models.StateGenerateStrawman
	entry := m.newEntry(session, models.RoleAssistant, models.ContentStrawman, strawman.MainTitle)
	if err := m.persist(ctx, session, entry); err != nil {
		return err
	}

	return m.emitAll(emit, m.packager(session).StrawmanBundle(strawman))
}

// runRefinement applies one round of edits to the current draft and
// re-presents it.
func (m *Machine) runRefinement(ctx context.Context, session *models.Session, instruction string, emit EmitFunc) error {
	if session.Strawman == nil {
		return fmt.Errorf("session %s has no strawman to refine", session.SessionID)
	}

	temp := float32(0.2)
	resp, err := m.llm.Generate(ctx, &llm.GenerateInput{
		Model:        m.cfg.Settings.Models.Refinement,
		SystemPrompt: refinementSystemPrompt,
		Messages: []llm.ConversationMessage{
			{Role: llm.RoleUser, Content: refinementUserMessage(session.Strawman, instruction)},
		},
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("refinement generation: %w", err)
	}

	ops, err := parseOperations(resp.Text)
	if err != nil {
		return fmt.Errorf("refinement parsing: %w", err)
	}

	strawman := session.Strawman.Clone()
	applied, err := applyOperations(m.cfg.Registry, strawman, ops)
	if err != nil {
		return fmt.Errorf("refinement apply: %w", err)
	}
	m.logWarnings(session, applied.Warnings)

	m.refreshPreview(ctx, session, strawman)

	session.Strawman = strawman
	session.CurrentState = models.StateRefineStrawman
	entry := m.newEntry(session, models.RoleAssistant, models.ContentStrawman, strawman.MainTitle)
	if err := m.persist(ctx, session, entry); err != nil {
		return err
	}

	p := m.packager(session)
	if text := formatWarnings(applied.Warnings); text != "" {
		if err := emit(p.ChatMessage(text)); err != nil {
			return err
		}
	}
	return m.emitAll(emit, m.refinedBundle(p, strawman, applied))
}

// refinedBundle picks the re-presentation shape: a partial_update when
// only variants changed, the full Stage 4/5 bundle otherwise.
func (m *Machine) refinedBundle(p *protocol.Packager, strawman *models.PresentationStrawman, applied *applyResult) []*protocol.Message {
	if !applied.OverridesOnly || !m.cfg.Settings.StreamlinedProtocol {
		return p.StrawmanBundle(strawman)
	}
	msgs := []*protocol.Message{p.PartialSlideUpdate(strawman, applied.AffectedSlideIDs)}
	if strawman.PreviewURL != "" {
		msgs = append(msgs, p.PreviewChat(strawman.PreviewURL))
	}
	return append(msgs, p.StrawmanActionRequest())
}

// runContentGeneration is Stage-6: fan the deck out to the generator
// services, finalize the deck, and land the session in the terminal
// state. A cancelled run persists what finished so a reconnect sees a
// coherent history; a partial failure never aborts the stage.
func (m *Machine) runContentGeneration(ctx context.Context, session *models.Session, emit EmitFunc) error {
	strawman := session.Strawman
	if strawman == nil {
		return fmt.Errorf("session %s has no strawman to generate", session.SessionID)
	}

	session.CurrentState = models.StateContentGeneration
	if err := m.store.Save(ctx, session); err != nil {
		return fmt.Errorf("persisting content-generation state: %w", err)
	}

	p := m.packager(session)
	total := len(strawman.Slides)
	if err := emit(p.StatusUpdate(protocol.StatusGenerating,
		fmt.Sprintf("Generating content for %d slides...", total), nil)); err != nil {
		return err
	}

	presentationID := strawman.PreviewID
	if presentationID == "" {
		presentationID = uuid.NewString()
	}

	result := m.content.GenerateContent(ctx, presentationID, strawman, func(completed, total int) {
		_ = emit(p.StatusUpdate(protocol.StatusGenerating,
			fmt.Sprintf("Generated %d of %d slides", completed, total),
			&protocol.Progress{Completed: completed, Total: total}))
	})

	if ctx.Err() != nil {
		return m.persistInterrupted(session, result)
	}

	finalURL := m.finalize(ctx, strawman, result.GeneratedSlides)

	session.FinalPresentationURL = finalURL
	session.CurrentState = models.StateTerminal
	entry := m.newEntry(session, models.RoleAssistant, models.ContentFinalURL, finalURL)
	if err := m.persist(ctx, session, entry); err != nil {
		return err
	}

	if err := emit(p.StatusUpdate(protocol.StatusCompleted,
		fmt.Sprintf("Content generation finished: %d of %d slides succeeded.", result.Succeeded(), total),
		&protocol.Progress{Completed: total, Total: total})); err != nil {
		return err
	}
	if err := emit(p.PresentationURL(finalURL, total, strawman.MainTitle)); err != nil {
		return err
	}
	if text := formatFailureSummary(result); text != "" {
		return emit(p.ChatMessage(text))
	}
	return nil
}

// persistInterrupted records a cancelled Stage-6 run: the session stays in
// the content-generation state with a failure marker in history, so the
// next connect can resume.
func (m *Machine) persistInterrupted(session *models.Session, result *generator.Result) error {
	// The connection context is gone; use a short independent one.
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	note := fmt.Sprintf("Content generation was interrupted: %d of %d slides finished. Send any message to resume.",
		result.Succeeded(), len(result.GeneratedSlides))
	entry := m.newEntry(session, models.RoleAssistant, models.ContentText, note)
	if err := m.persist(saveCtx, session, entry); err != nil {
		m.logger.Error("Failed to persist interrupted content generation",
			"session_id", session.SessionID,
			"error", err)
	}
	return context.Canceled
}

// finalize obtains the terminal URL: the deck builder when available,
// otherwise the locally derived fallback. The terminal frame is always
// emitted with some URL.
func (m *Machine) finalize(ctx context.Context, strawman *models.PresentationStrawman, generated []generator.GeneratedSlide) string {
	final, err := m.builder.Finalize(ctx, strawman, generated)
	if err == nil {
		return final.URL
	}
	if !errors.Is(err, deckbuilder.ErrDisabled) {
		m.logger.Warn("Deck finalize failed, using fallback URL", "error", err)
	}
	return m.builder.FallbackURL(strawman.PreviewID)
}

// runRestart resets the presentation and replays the greeting. History is
// retained; it is append-only.
func (m *Machine) runRestart(ctx context.Context, session *models.Session, emit EmitFunc) error {
	session.Strawman = nil
	session.FinalPresentationURL = ""
	session.CurrentState = models.StateProvideGreeting
	if err := m.store.Save(ctx, session); err != nil {
		return fmt.Errorf("persisting restart: %w", err)
	}
	return m.runGreeting(ctx, session, emit)
}

// runTerminalAck answers post-completion chatter without leaving the
// terminal state.
func (m *Machine) runTerminalAck(ctx context.Context, session *models.Session, emit EmitFunc) error {
	text := "Glad to help! Your presentation link is above. Say \"restart\" whenever you want to build another one."
	entry := m.newEntry(session, models.RoleAssistant, models.ContentText, text)
	if err := m.persist(ctx, session, entry); err != nil {
		return err
	}
	return emit(m.packager(session).ChatMessage(text))
}

// refreshPreview asks the deck builder for a preview and stamps the URL
// and id onto the strawman. Failures are logged and non-fatal; the bundle
// simply goes out without a preview.
func (m *Machine) refreshPreview(ctx context.Context, session *models.Session, strawman *models.PresentationStrawman) {
	if !m.builder.Enabled() {
		return
	}
	preview, err := m.builder.CreatePreview(ctx, strawman)
	if err != nil {
		m.logger.Warn("Deck preview failed, continuing without one",
			"session_id", session.SessionID,
			"error", err)
		return
	}
	strawman.PreviewURL = preview.URL
	strawman.PreviewID = preview.PresentationID
}

// conversation converts the stored history into prompt messages. Only
// plain-text and plan entries ride along; strawman and URL entries are
// structural and carry no prompt value.
func (m *Machine) conversation(session *models.Session) []llm.ConversationMessage {
	var msgs []llm.ConversationMessage
	for _, entry := range session.ConversationHistory {
		if entry.ContentVariant == models.ContentStrawman || entry.ContentVariant == models.ContentFinalURL {
			continue
		}
		role := llm.RoleAssistant
		if entry.Role == models.RoleUser {
			role = llm.RoleUser
		}
		msgs = append(msgs, llm.ConversationMessage{Role: role, Content: entry.Content})
	}
	return msgs
}

// newEntry builds the next history entry. Timestamps are strictly
// monotonic per session; a same-instant collision is nudged forward.
func (m *Machine) newEntry(session *models.Session, role models.Role, variant models.ContentVariant, content string) models.ConversationEntry {
	ts := time.Now().UTC()
	if n := len(session.ConversationHistory); n > 0 {
		if last := session.ConversationHistory[n-1].Timestamp; !ts.After(last) {
			ts = last.Add(time.Microsecond)
		}
	}
	return models.ConversationEntry{
		MessageID:      uuid.NewString(),
		Role:           role,
		State:          session.CurrentState,
		ContentVariant: variant,
		Content:        content,
		Timestamp:      ts,
		Sequence:       session.NextSequence(),
	}
}

// persist appends the entries in memory, saves the session, then appends
// the entries to the durable log. Save runs first so a transition is
// never acknowledged against an unsaved state.
func (m *Machine) persist(ctx context.Context, session *models.Session, entries ...models.ConversationEntry) error {
	for _, entry := range entries {
		session.AppendEntry(entry)
	}
	session.UpdatedAt = time.Now().UTC()
	if err := m.store.Save(ctx, session); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	for _, entry := range entries {
		if err := m.store.AppendHistory(ctx, session.SessionID, entry); err != nil {
			return fmt.Errorf("appending history: %w", err)
		}
	}
	return nil
}

// surface reports a stage error to the client as a chat_message and
// returns the original error for the connection log. The session stays in
// its current state, so the user can simply try again.
func (m *Machine) surface(session *models.Session, emit EmitFunc, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	m.logger.Error("Dialog step failed",
		"session_id", session.SessionID,
		"state", session.CurrentState,
		"error", err)
	_ = emit(m.packager(session).ChatMessage(
		"Something went wrong on my side - please try that again in a moment."))
	return err
}

func (m *Machine) emitAll(emit EmitFunc, msgs []*protocol.Message) error {
	for _, msg := range msgs {
		if err := emit(msg); err != nil {
			return err
		}
	}
	return nil
}

// logWarnings records classifier warnings; they inform, never block.
func (m *Machine) logWarnings(session *models.Session, warnings []classifier.Warning) {
	for _, w := range warnings {
		m.logger.Info("Classification warning",
			"session_id", session.SessionID,
			"slide_id", w.SlideID,
			"rule", w.Rule,
			"detail", w.Detail)
	}
}

// formatWarnings renders diversity/override warnings for the user. Only
// diversity warnings surface; layout repairs are internal bookkeeping.
func formatWarnings(warnings []classifier.Warning) string {
	var lines []string
	for _, w := range warnings {
		if w.Rule == classifier.RuleDiversity {
			lines = append(lines, fmt.Sprintf("- %s: %s", w.SlideID, w.Detail))
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return "Heads up, a few slides bend the variety guideline:\n" + strings.Join(lines, "\n")
}

// formatFailureSummary renders the Stage-6 error summary for the user:
// which slides failed and what to do about it.
func formatFailureSummary(result *generator.Result) string {
	if result.Summary == nil || len(result.FailedSlides) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d slides could not be generated:\n", result.Summary.FailedSlides, result.Summary.TotalSlides)
	for _, f := range result.FailedSlides {
		fmt.Fprintf(&b, "- Slide %d (%s): %s\n", f.SlideNumber, f.Service, f.Category)
	}
	if len(result.Summary.RecommendedActions) > 0 {
		b.WriteString("Recommended actions:\n")
		for _, action := range result.Summary.RecommendedActions {
			fmt.Fprintf(&b, "- %s\n", action)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
