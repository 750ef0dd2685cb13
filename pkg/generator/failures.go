package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/deckhand-io/deckhand/pkg/models"
	"github.com/deckhand-io/deckhand/pkg/retry"
)

// classifyFailure derives the failure category and, when known, the HTTP
// status from an error chain. Retry exhaustion wrappers are looked
// through.
func classifyFailure(err error) (FailureCategory, int) {
	if err == nil {
		return CategoryUnknown, 0
	}

	if errors.Is(err, ErrResponseValidation) {
		return CategoryValidation, 0
	}

	var httpErr *retry.HTTPStatusError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode >= 500:
			return CategoryHTTP5xx, httpErr.StatusCode
		case httpErr.StatusCode >= 400:
			return CategoryHTTP4xx, httpErr.StatusCode
		}
		return CategoryUnknown, httpErr.StatusCode
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout, 0
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CategoryTimeout, 0
		}
		return CategoryConnection, 0
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return CategoryValidation, 0
	}

	return CategoryUnknown, 0
}

// suggestedAction maps a failure to the operator guidance carried on the
// failure record and rolled up into the summary.
func suggestedAction(category FailureCategory, service string, status int) string {
	switch category {
	case CategoryTimeout:
		return fmt.Sprintf("increase the %s service timeout or check its load", service)
	case CategoryHTTP4xx:
		if status == http.StatusTooManyRequests {
			return fmt.Sprintf("reduce the request rate to the %s service or raise its quota", service)
		}
		return fmt.Sprintf("check the %s request payload against the service contract", service)
	case CategoryHTTP5xx:
		return fmt.Sprintf("check %s service health and logs", service)
	case CategoryConnection:
		return fmt.Sprintf("verify the %s service is reachable at its base URL", service)
	case CategoryValidation:
		return fmt.Sprintf("simplify the slide brief; the %s service rejected the generated content", service)
	}
	return "inspect the orchestrator logs for the underlying error"
}

// newFailure builds the failure record for one slide.
func newFailure(slide *models.Slide, service, endpoint string, err error, attempts int) SlideFailure {
	category, status := classifyFailure(err)
	return SlideFailure{
		SlideNumber:     slide.SlideNumber,
		SlideID:         slide.SlideID,
		SlideType:       slide.SlideTypeClassification,
		Service:         service,
		Endpoint:        endpoint,
		Err:             err.Error(),
		Category:        category,
		HTTPStatus:      status,
		SuggestedAction: suggestedAction(category, service, status),
		Attempts:        attempts,
	}
}
