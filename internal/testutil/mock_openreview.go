// Package testutil provides testing utilities for the review collector.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines a scripted response of the mock server.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockOpenReview is a configurable mock of the OpenReview /notes API.
//
// Submission pages are served from SetSubmissions for
// /notes?invitation=...&limit=&offset= and forums from SetForum for
// /notes?forum=<id>. Scripted responses registered with Script are served
// first, in order, for the matching request key.
type MockOpenReview struct {
	server *httptest.Server

	mu          sync.RWMutex
	submissions []json.RawMessage
	forums      map[string][]json.RawMessage
	scripted    map[string][]MockResponse
	handlers    map[string]http.HandlerFunc
	omitCount   bool

	// Tracking
	RequestCount      int
	LastRequestHeader http.Header
	requestsByKey     map[string]int
}

// NewMockOpenReview creates and starts a mock OpenReview server.
func NewMockOpenReview() *MockOpenReview {
	mock := &MockOpenReview{
		forums:        make(map[string][]json.RawMessage),
		scripted:      make(map[string][]MockResponse),
		handlers:      make(map[string]http.HandlerFunc),
		requestsByKey: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server URL.
func (m *MockOpenReview) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOpenReview) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockOpenReview) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestHeader = nil
	m.requestsByKey = make(map[string]int)
}

// SetHandler overrides the handler of a path.
func (m *MockOpenReview) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetSubmissions sets the venue's submission notes in enumeration order.
func (m *MockOpenReview) SetSubmissions(notes ...json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submissions = append([]json.RawMessage(nil), notes...)
}

// SetForum sets the notes of a forum (the submission's replies).
func (m *MockOpenReview) SetForum(id string, notes ...json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forums[id] = append([]json.RawMessage(nil), notes...)
}

// OmitCount drops the "count" field from page responses.
func (m *MockOpenReview) OmitCount(omit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.omitCount = omit
}

// Script queues responses served before normal handling for key, which is
// PageKey(offset) or ForumKey(id).
func (m *MockOpenReview) Script(key string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted[key] = append(m.scripted[key], responses...)
}

// PageKey is the request key of the submission page starting at offset.
func PageKey(offset int) string {
	return fmt.Sprintf("page:%d", offset)
}

// ForumKey is the request key of a forum fetch.
func ForumKey(id string) string {
	return "forum:" + id
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockOpenReview) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// Requests returns the number of requests made for key.
func (m *MockOpenReview) Requests(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestsByKey[key]
}

func (m *MockOpenReview) serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var key string
	switch {
	case q.Get("forum") != "":
		key = ForumKey(q.Get("forum"))
	case q.Get("invitation") != "":
		key = PageKey(atoi(q.Get("offset")))
	default:
		key = r.URL.Path
	}

	m.mu.Lock()
	m.RequestCount++
	m.LastRequestHeader = r.Header.Clone()
	m.requestsByKey[key]++

	var scripted *MockResponse
	if queue := m.scripted[key]; len(queue) > 0 {
		scripted = &queue[0]
		m.scripted[key] = queue[1:]
	}
	handler, hasHandler := m.handlers[r.URL.Path]
	m.mu.Unlock()

	if scripted != nil {
		writeMockResponse(w, *scripted)
		return
	}
	if hasHandler {
		handler(w, r)
		return
	}

	if r.URL.Path != "/notes" {
		writeMockResponse(w, NewNotFoundResponse())
		return
	}

	switch {
	case q.Get("forum") != "":
		m.serveForum(w, q.Get("forum"))
	case q.Get("invitation") != "":
		m.servePage(w, atoi(q.Get("offset")), atoi(q.Get("limit")))
	default:
		writeMockResponse(w, MockResponse{
			StatusCode: http.StatusBadRequest,
			Body:       `{"name":"ValidationError","message":"missing query"}`,
		})
	}
}

func (m *MockOpenReview) servePage(w http.ResponseWriter, offset, limit int) {
	m.mu.RLock()
	all := m.submissions
	omitCount := m.omitCount
	m.mu.RUnlock()

	if limit <= 0 {
		limit = 1000
	}
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}

	body := map[string]interface{}{"notes": all[offset:end]}
	if !omitCount {
		body["count"] = len(all)
	}
	writeJSON(w, http.StatusOK, body)
}

func (m *MockOpenReview) serveForum(w http.ResponseWriter, id string) {
	m.mu.RLock()
	notes, ok := m.forums[id]
	m.mu.RUnlock()

	if !ok {
		writeMockResponse(w, NewNotFoundResponse())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notes": notes})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-RateLimit-Remaining", "100")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMockResponse(w http.ResponseWriter, resp MockResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = w.Write([]byte(resp.Body))
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse(retryAfter int) MockResponse {
	headers := map[string]string{"X-RateLimit-Remaining": "0"}
	if retryAfter > 0 {
		headers["Retry-After"] = strconv.Itoa(retryAfter)
	}
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"name":"RateLimitError","message":"Too many requests, please try again later"}`,
		Headers:    headers,
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"name":"InternalServerError","message":"Internal server error"}`,
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"name":"NotFoundError","message":"The Note was not found"}`,
	}
}

// NewForbiddenResponse creates a 403 Forbidden response.
func NewForbiddenResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"name":"ForbiddenError","message":"You don't have permission to read this Note"}`,
	}
}
