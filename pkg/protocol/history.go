package protocol

import (
	"sort"

	"github.com/deckhand-io/deckhand/pkg/models"
)

// RestoreHistory rebuilds the outbound frames a reconnecting client would
// have seen, in chronological order (timestamp, then stored sequence for
// same-timestamp entries). Each entry expands to the same messages the
// live pipeline emitted for it; reconstructed frames reuse the stored
// entry timestamp, so two reconstructions of the same session differ only
// in message_id.
//
// Strawman entries are rebuilt from the session's current strawman, never
// from history content: preview URLs and variant assignments may have
// moved on since the entry was written.
func RestoreHistory(session *models.Session, streamlined bool) []*Message {
	if session == nil || len(session.ConversationHistory) == 0 {
		return nil
	}

	entries := make([]models.ConversationEntry, len(session.ConversationHistory))
	copy(entries, session.ConversationHistory)
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Timestamp.Before(entries[j].Timestamp)
		}
		return entries[i].Sequence < entries[j].Sequence
	})

	p := NewPackager(session.SessionID, streamlined)

	var out []*Message
	for i := range entries {
		out = append(out, restoreEntry(p, &entries[i], session)...)
	}
	return out
}

// restoreEntry expands one stored entry into its wire frames, stamped with
// the entry's stored timestamp.
func restoreEntry(p *Packager, entry *models.ConversationEntry, session *models.Session) []*Message {
	var msgs []*Message
	switch {
	case entry.Role == models.RoleUser:
		msgs = []*Message{p.UserChatMessage(entry.Content)}

	case entry.ContentVariant == models.ContentPlan:
		msgs = []*Message{
			p.ChatMessage(entry.Content),
			p.PlanActionRequest(),
		}

	case entry.ContentVariant == models.ContentStrawman:
		if session.Strawman != nil {
			msgs = p.StrawmanBundle(session.Strawman)
		} else {
			// Strawman discarded since (e.g. restart); fall back to text.
			msgs = []*Message{p.ChatMessage(entry.Content)}
		}

	case entry.ContentVariant == models.ContentFinalURL:
		url := entry.Content
		if url == "" {
			url = session.FinalPresentationURL
		}
		slideCount, title := 0, ""
		if session.Strawman != nil {
			slideCount = len(session.Strawman.Slides)
			title = session.Strawman.MainTitle
		}
		msgs = []*Message{p.PresentationURL(url, slideCount, title)}

	default:
		msgs = []*Message{p.ChatMessage(entry.Content)}
	}

	ts := Timestamp(entry.Timestamp)
	for _, m := range msgs {
		m.Timestamp = ts
	}
	return msgs
}
