// Package generator routes classified slides to the text, illustrator and
// analytics services and collates the results. This is the content phase:
// slides fan out in parallel up to a configured bound, every call carries
// retries and pacing, and a failing slide never aborts the run.
package generator

// GeneratedSlide carries the generated content for one slide. The result
// array is parallel to the input strawman order; a failed slide keeps its
// slot with Failed set and no content.
type GeneratedSlide struct {
	SlideNumber int            `json:"slide_number"`
	SlideID     string         `json:"slide_id"`
	VariantID   string         `json:"variant_id"`
	Service     string         `json:"service"`
	Content     map[string]any `json:"content,omitempty"`
	Failed      bool           `json:"failed,omitempty"`
}

// FailureCategory classifies why a slide failed.
type FailureCategory string

const (
	CategoryTimeout    FailureCategory = "timeout"
	CategoryHTTP4xx    FailureCategory = "http_4xx"
	CategoryHTTP5xx    FailureCategory = "http_5xx"
	CategoryConnection FailureCategory = "connection"
	CategoryValidation FailureCategory = "validation"
	CategoryUnknown    FailureCategory = "unknown"
)

// SlideFailure records one slide that could not be generated.
type SlideFailure struct {
	SlideNumber     int             `json:"slide_number"`
	SlideID         string          `json:"slide_id"`
	SlideType       string          `json:"slide_type"`
	Service         string          `json:"service"`
	Endpoint        string          `json:"endpoint"`
	Err             string          `json:"error"`
	Category        FailureCategory `json:"category"`
	HTTPStatus      int             `json:"http_status,omitempty"`
	SuggestedAction string          `json:"suggested_action"`
	Attempts        int             `json:"attempts"`
}

// Result is the outcome of one content-generation run.
type Result struct {
	GeneratedSlides []GeneratedSlide `json:"generated_slides"`
	FailedSlides    []SlideFailure   `json:"failed_slides"`
	Summary         *ErrorSummary    `json:"error_summary,omitempty"`
}

// Succeeded counts the slides that generated content.
func (r *Result) Succeeded() int {
	n := 0
	for _, s := range r.GeneratedSlides {
		if !s.Failed {
			n++
		}
	}
	return n
}

// Request is the envelope sent to every generator service. The tracking
// fields are echoed back by the services; the extras depend on the service
// family.
type Request struct {
	PresentationID      string   `json:"presentation_id"`
	SlideID             string   `json:"slide_id"`
	SlideNumber         int      `json:"slide_number"`
	VariantID           string   `json:"variant_id"`
	SlideTitle          string   `json:"slide_title"`
	Narrative           string   `json:"narrative"`
	KeyPoints           []string `json:"key_points"`
	StructurePreference string   `json:"structure_preference"`

	// Text extras: the raw brief fields.
	AnalyticsNeeded *string `json:"analytics_needed,omitempty"`
	VisualsNeeded   *string `json:"visuals_needed,omitempty"`
	DiagramsNeeded  *string `json:"diagrams_needed,omitempty"`
	TablesNeeded    *string `json:"tables_needed,omitempty"`

	// Illustrator extras.
	Topic        string `json:"topic,omitempty"`
	Tone         string `json:"tone,omitempty"`
	Audience     string `json:"audience,omitempty"`
	ElementCount int    `json:"element_count,omitempty"`

	// Analytics extras.
	AnalyticsType string `json:"analytics_type,omitempty"`
	DataShape     string `json:"data_shape,omitempty"`
	Brief         string `json:"brief,omitempty"`
}
