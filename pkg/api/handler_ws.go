package api

import (
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// wsParams are the connect-time query parameters of GET /ws.
type wsParams struct {
	sessionID     string
	userID        string
	skipHistory   bool
	lastMessageID string
}

// wsHandler upgrades GET /ws to a WebSocket and runs the dialog until the
// connection closes.
func (s *Server) wsHandler(c *echo.Context) error {
	params, err := parseWSParams(c)
	if err != nil {
		return err
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Browser clients connect from arbitrary origins during development;
		// origin allow-listing belongs to the deployment proxy.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	// serveConnection blocks until the WebSocket closes.
	s.serveConnection(c.Request().Context(), conn, params)
	return nil
}

// parseWSParams validates the connect query string. session_id and user_id
// are required; a malformed skip_history reads as false.
func parseWSParams(c *echo.Context) (wsParams, error) {
	params := wsParams{
		sessionID:     c.QueryParam("session_id"),
		userID:        c.QueryParam("user_id"),
		lastMessageID: c.QueryParam("last_message_id"),
	}
	if params.sessionID == "" {
		return params, echo.NewHTTPError(http.StatusBadRequest, "session_id query parameter is required")
	}
	if params.userID == "" {
		return params, echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}
	if raw := c.QueryParam("skip_history"); raw != "" {
		params.skipHistory, _ = strconv.ParseBool(raw)
	}
	return params, nil
}
