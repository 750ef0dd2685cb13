package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// FakeRequest records one request a fake generator service received.
type FakeRequest struct {
	Path string
	Body map[string]any
}

// FakeService is an httptest stand-in for one generator service. Every
// POST answers 200 with a small content object unless a scripted failure
// is pending for the path.
type FakeService struct {
	name   string
	server *httptest.Server

	mu       sync.Mutex
	requests []FakeRequest
	failures map[string]int
}

func newFakeService(t *testing.T, name string) *FakeService {
	t.Helper()
	s := &FakeService{
		name:     name,
		failures: make(map[string]int),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

func (s *FakeService) handle(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.requests = append(s.requests, FakeRequest{Path: r.URL.Path, Body: body})
	if s.failures[r.URL.Path] > 0 {
		s.failures[r.URL.Path]--
		s.mu.Unlock()
		http.Error(w, "scripted failure", http.StatusInternalServerError)
		return
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"service": s.name,
		"path":    r.URL.Path,
		"content": map[string]any{"generated": true},
	})
}

// URL returns the service base URL.
func (s *FakeService) URL() string { return s.server.URL }

// FailNext makes the next n requests to path answer 500.
func (s *FakeService) FailNext(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[path] += n
}

// Requests returns a snapshot of all recorded requests.
func (s *FakeService) Requests() []FakeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]FakeRequest, len(s.requests))
	copy(result, s.requests)
	return result
}

// Hits counts requests received for a path.
func (s *FakeService) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, req := range s.requests {
		if req.Path == path {
			n++
		}
	}
	return n
}

// FakeDeckBuilder is an httptest stand-in for the deck-builder service.
type FakeDeckBuilder struct {
	server *httptest.Server

	mu            sync.Mutex
	previewCalls  int
	finalizeCalls int
}

func newFakeDeckBuilder(t *testing.T) *FakeDeckBuilder {
	t.Helper()
	b := &FakeDeckBuilder{}
	b.server = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.server.Close)
	return b
}

func (b *FakeDeckBuilder) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/presentations/preview":
		b.mu.Lock()
		b.previewCalls++
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"presentation_id": "prev-e2e",
			"url":             b.server.URL + "/presentations/prev-e2e",
		})
	case "/presentations/finalize":
		b.mu.Lock()
		b.finalizeCalls++
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"url": b.server.URL + "/presentations/prev-e2e/final",
		})
	default:
		http.NotFound(w, r)
	}
}

// URL returns the deck builder base URL.
func (b *FakeDeckBuilder) URL() string { return b.server.URL }

// PreviewURL is the URL the fake answers preview requests with.
func (b *FakeDeckBuilder) PreviewURL() string {
	return b.server.URL + "/presentations/prev-e2e"
}

// FinalURL is the URL the fake answers finalize requests with.
func (b *FakeDeckBuilder) FinalURL() string {
	return b.server.URL + "/presentations/prev-e2e/final"
}

// PreviewCalls counts preview requests received.
func (b *FakeDeckBuilder) PreviewCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.previewCalls
}

// FinalizeCalls counts finalize requests received.
func (b *FakeDeckBuilder) FinalizeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalizeCalls
}

// FakeServices bundles the three generator fakes and the deck builder.
type FakeServices struct {
	Text        *FakeService
	Illustrator *FakeService
	Analytics   *FakeService
	DeckBuilder *FakeDeckBuilder
}

func newFakeServices(t *testing.T) *FakeServices {
	t.Helper()
	return &FakeServices{
		Text:        newFakeService(t, "text"),
		Illustrator: newFakeService(t, "illustrator"),
		Analytics:   newFakeService(t, "analytics"),
		DeckBuilder: newFakeDeckBuilder(t),
	}
}
