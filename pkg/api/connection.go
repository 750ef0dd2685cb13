package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/websocket"

	"github.com/deckhand-io/deckhand/pkg/dialog"
	"github.com/deckhand-io/deckhand/pkg/models"
	"github.com/deckhand-io/deckhand/pkg/protocol"
	"github.com/deckhand-io/deckhand/pkg/store"
)

// wsConn drives one WebSocket connection. All reads and writes happen on
// the goroutine that owns the connection, so frames leave in the order the
// machine emitted them.
type wsConn struct {
	conn    *websocket.Conn
	machine *dialog.Machine
	session *models.Session

	packager     *protocol.Packager
	streamlined  bool
	replayDelay  time.Duration
	writeTimeout time.Duration
	logger       *slog.Logger
}

// serveConnection runs the connection lifecycle: load or create the
// session, send the entry frames, then process inbound frames until the
// socket closes. Each connection gets its own fallback store, so a failing
// backend degrades this conversation to memory instead of dropping it.
func (s *Server) serveConnection(parentCtx context.Context, conn *websocket.Conn, params wsParams) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	fb := store.NewFallback(s.store)
	machine := dialog.NewMachine(s.cfg, s.llm, s.content, s.builder, fb)

	session, err := fb.GetOrCreate(ctx, params.sessionID, params.userID)
	if err != nil {
		slog.Error("Failed to load session for WebSocket connection",
			"session_id", params.sessionID,
			"error", err)
		_ = conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	c := &wsConn{
		conn:         conn,
		machine:      machine,
		session:      session,
		packager:     protocol.NewPackager(session.SessionID, s.cfg.Settings.StreamlinedProtocol),
		streamlined:  s.cfg.Settings.StreamlinedProtocol,
		replayDelay:  s.cfg.Settings.HistoryReplayDelay(),
		writeTimeout: s.writeTimeout,
		logger: slog.Default().With(
			"session_id", session.SessionID,
			"user_id", session.UserID),
	}

	c.logger.Info("WebSocket connected",
		"state", session.CurrentState,
		"skip_history", params.skipHistory)

	if err := c.open(ctx, params); err != nil {
		c.logger.Warn("Connection setup failed", "error", err)
		return
	}
	c.readLoop(ctx)
	c.logger.Info("WebSocket disconnected", "state", c.session.CurrentState)
}

// open sends the entry frames: a sync acknowledgement, the history replay,
// or the greeting for a brand-new session.
func (c *wsConn) open(ctx context.Context, params wsParams) error {
	if params.lastMessageID != "" {
		// The full history goes out regardless; the client dedupes by
		// message_id from this marker onward.
		c.logger.Debug("Client reports last seen message", "last_message_id", params.lastMessageID)
	}

	// A brand-new session always opens with the greeting, even when the
	// client asked to skip history: there is nothing to skip yet.
	if c.session.CurrentState == models.StateProvideGreeting && len(c.session.ConversationHistory) == 0 {
		return c.machine.Start(ctx, c.session, c.emit(ctx))
	}
	if params.skipHistory {
		return c.send(ctx, c.packager.SyncResponse(c.session.CurrentState))
	}
	return c.replay(ctx)
}

// readLoop processes inbound frames until the socket closes or the
// context ends.
func (c *wsConn) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var in protocol.InboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			c.logger.Warn("Malformed inbound frame", "error", err)
			_ = c.send(ctx, c.packager.ChatMessage("I couldn't read that message - please send it again."))
			continue
		}

		c.dispatch(ctx, &in)
		if ctx.Err() != nil {
			return
		}
	}
}

// dispatch handles one parsed inbound frame. Machine errors are already
// surfaced to the client as chat messages; here they only get logged.
func (c *wsConn) dispatch(ctx context.Context, in *protocol.InboundMessage) {
	switch in.Type {
	case protocol.InboundUserMessage:
		err := c.machine.HandleUserMessage(ctx, c.session, in.Data.Text, c.emit(ctx))
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error("Dialog step failed", "error", err)
		}

	case protocol.InboundSyncRequest:
		if in.Data.SkipHistory {
			_ = c.send(ctx, c.packager.SyncResponse(c.session.CurrentState))
			return
		}
		if err := c.replay(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("History replay failed", "error", err)
		}

	default:
		c.logger.Warn("Unsupported inbound frame type", "type", in.Type)
		_ = c.send(ctx, c.packager.ChatMessage(fmt.Sprintf("I don't understand %q messages.", in.Type)))
	}
}

// replay re-sends the reconstructed conversation, pacing frames by the
// configured delay so clients can render incrementally.
func (c *wsConn) replay(ctx context.Context) error {
	frames := protocol.RestoreHistory(c.session, c.streamlined)
	for i, msg := range frames {
		if i > 0 && c.replayDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.replayDelay):
			}
		}
		if err := c.send(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// emit adapts send to the machine's frame callback.
func (c *wsConn) emit(ctx context.Context) dialog.EmitFunc {
	return func(msg *protocol.Message) error {
		return c.send(ctx, msg)
	}
}

// send validates, marshals and writes one frame with a write timeout.
func (c *wsConn) send(ctx context.Context, msg *protocol.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("refusing invalid outbound frame: %w", err)
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling outbound frame: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()
	return c.conn.Write(writeCtx, websocket.MessageText, data)
}
