// Package testutil provides testing utilities for the LRN resolver.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockLRNResponse defines the behavior for one mock LRN response.
type MockLRNResponse struct {
	StatusCode int
	Body       string
	Delay      time.Duration
}

// MockLRN is a configurable mock LRN service for testing. Requests are
// GET <base>/<number>; unconfigured numbers answer DefaultResponse.
type MockLRN struct {
	server *httptest.Server
	mu     sync.RWMutex

	// scripts holds per-number queues; the last entry repeats forever.
	scripts map[string][]MockLRNResponse

	DefaultResponse MockLRNResponse

	// Tracking
	RequestCount      int
	RequestsPerNumber map[string]int
	LastRequestHeader http.Header
}

// NewMockLRN creates a new mock LRN server answering "8542850999;616J" by default.
func NewMockLRN() *MockLRN {
	mock := &MockLRN{
		scripts:           make(map[string][]MockLRNResponse),
		RequestsPerNumber: make(map[string]int),
		DefaultResponse:   NewLRNResponse("8542850999;616J"),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the base URL to configure an endpoint with.
func (m *MockLRN) URL() string {
	return m.server.URL + "/v1/telique/lrn/"
}

// Close shuts down the mock server.
func (m *MockLRN) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockLRN) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.RequestsPerNumber = make(map[string]int)
	m.LastRequestHeader = nil
}

// SetResponses scripts the answers for number, consumed in order. The last
// response repeats once the script is exhausted.
func (m *MockLRN) SetResponses(number string, responses ...MockLRNResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[number] = responses
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockLRN) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequestsFor returns the number of requests made for number.
func (m *MockLRN) GetRequestsFor(number string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestsPerNumber[number]
}

// GetLastRequestHeader returns the headers of the most recent request.
func (m *MockLRN) GetLastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastRequestHeader
}

func (m *MockLRN) handle(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	m.mu.Lock()
	m.RequestCount++
	m.RequestsPerNumber[number]++
	m.LastRequestHeader = r.Header.Clone()

	resp := m.DefaultResponse
	if script, ok := m.scripts[number]; ok && len(script) > 0 {
		resp = script[0]
		if len(script) > 1 {
			m.scripts[number] = script[1:]
		}
	}
	m.mu.Unlock()

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// NewLRNResponse creates a 200 OK response carrying body.
func NewLRNResponse(body string) MockLRNResponse {
	return MockLRNResponse{StatusCode: http.StatusOK, Body: body}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockLRNResponse {
	return MockLRNResponse{StatusCode: http.StatusInternalServerError, Body: "internal error"}
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockLRNResponse {
	return MockLRNResponse{StatusCode: http.StatusTooManyRequests, Body: "rate limit exceeded"}
}

// NewEmptyResponse creates a 200 OK response whose body is too short to be a result.
func NewEmptyResponse() MockLRNResponse {
	return MockLRNResponse{StatusCode: http.StatusOK, Body: " %\n"}
}
