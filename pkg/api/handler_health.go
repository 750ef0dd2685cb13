package api

import (
	"context"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/deckhand-io/deckhand/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// healthHandler handles GET /health. Only deckhand's own components are
// checked: the session store and the model configuration. The generator
// services are excluded so an orchestrator never restarts deckhand over a
// flaky downstream service.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]HealthCheck)
	status := healthStatusHealthy

	if err := s.store.Ping(reqCtx); err != nil {
		status = healthStatusUnhealthy
		checks["session_store"] = HealthCheck{Status: healthStatusUnhealthy, Message: err.Error()}
	} else {
		checks["session_store"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.cfg.Settings.GoogleAPIKey == "" {
		if status == healthStatusHealthy {
			status = healthStatusDegraded
		}
		checks["llm"] = HealthCheck{Status: healthStatusDegraded, Message: "no API key configured"}
	} else {
		checks["llm"] = HealthCheck{Status: healthStatusHealthy}
	}

	if s.builder.Enabled() {
		checks["deck_builder"] = HealthCheck{Status: healthStatusHealthy}
	} else {
		// Disabled by configuration; not a degradation.
		checks["deck_builder"] = HealthCheck{Status: healthStatusHealthy, Message: "preview builder disabled"}
	}

	httpStatus := http.StatusOK
	if status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	return c.JSON(httpStatus, &HealthResponse{
		Status:  status,
		Version: version.GitCommit,
		Checks:  checks,
	})
}
