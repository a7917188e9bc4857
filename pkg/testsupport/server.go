package testsupport

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// RecordedRequest is a request captured by a RecordingServer.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Body     []byte
}

// RecordingServer is an httptest server that remembers every request it
// receives before delegating to a handler.
type RecordingServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewRecordingServer starts a server that records requests and then serves
// them with handler. The server is closed when the test ends.
func NewRecordingServer(t *testing.T, handler http.Handler) *RecordingServer {
	t.Helper()

	rs := &RecordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.requests = append(rs.requests, RecordedRequest{
			Method:   r.Method,
			Path:     r.URL.EscapedPath(),
			RawQuery: r.URL.RawQuery,
			Body:     body,
		})
		rs.mu.Unlock()

		r.Body = io.NopCloser(bytes.NewReader(body))
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(rs.Close)

	return rs
}

// Requests returns a copy of the requests received so far.
func (s *RecordingServer) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many requests matched method. An empty method counts all.
func (s *RecordingServer) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.requests {
		if method == "" || r.Method == method {
			n++
		}
	}
	return n
}

// JSONHandler replies with a fixed status and body.
func JSONHandler(status int, body []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
	})
}
