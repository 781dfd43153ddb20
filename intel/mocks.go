package intel

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// MockIntelServer is a mock HTTP server standing in for all three threat
// intelligence backends in tests. Providers are pointed at it via
// Options.BaseURL. Responses can be scripted per indicator; every request is
// captured so tests can assert on call counts and credentials.
type MockIntelServer struct {
	server      *httptest.Server
	mux         *http.ServeMux
	requests    []CapturedRequest
	requestsMu  sync.RWMutex
	responses   map[string]MockResponse
	responsesMu sync.RWMutex
	shouldFail  bool
	failStatus  int
	delay       time.Duration
}

// CapturedRequest records one request received by the mock server.
type CapturedRequest struct {
	Method     string
	Path       string
	Query      string
	APIKey     string
	CapturedAt time.Time
}

// MockResponse is a scripted response for a specific indicator.
type MockResponse struct {
	StatusCode int
	Body       string
}

// NewMockIntelServer creates and starts a mock intel server.
func NewMockIntelServer() *MockIntelServer {
	mux := http.NewServeMux()
	m := &MockIntelServer{
		mux:        mux,
		responses:  make(map[string]MockResponse),
		failStatus: http.StatusInternalServerError,
	}

	mux.HandleFunc("/api/v2/check", m.handleAbuseIPDB)
	mux.HandleFunc("/api/v1/indicators/", m.handleOTX)
	mux.HandleFunc("/api/v3/ip_addresses/", m.handleVirusTotalIP)
	mux.HandleFunc("/api/v3/domains/", m.handleVirusTotalDomain)

	m.server = httptest.NewServer(mux)
	return m
}

func (m *MockIntelServer) handleAbuseIPDB(w http.ResponseWriter, r *http.Request) {
	m.capture(r, r.Header.Get("Key"))
	if m.interfere(w) {
		return
	}

	ip := r.URL.Query().Get("ipAddress")
	if m.writeScripted(w, "ip:"+ip) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"data":{"abuseConfidenceScore":0,"totalReports":0,"isWhitelisted":false}}`)
}

func (m *MockIntelServer) handleOTX(w http.ResponseWriter, r *http.Request) {
	m.capture(r, r.Header.Get("X-OTX-API-KEY"))
	if m.interfere(w) {
		return
	}

	// /api/v1/indicators/{IPv4|domain}/{value}/general
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/indicators/"), "/")
	if len(parts) >= 2 {
		key := "ip:" + parts[1]
		if parts[0] == "domain" {
			key = "domain:" + strings.ToLower(parts[1])
		}
		if m.writeScripted(w, key) {
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"pulse_info":{"count":0,"pulses":[]}}`)
}

func (m *MockIntelServer) handleVirusTotalIP(w http.ResponseWriter, r *http.Request) {
	m.capture(r, r.Header.Get("x-apikey"))
	if m.interfere(w) {
		return
	}

	ip := strings.TrimPrefix(r.URL.Path, "/api/v3/ip_addresses/")
	if m.writeScripted(w, "ip:"+ip) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"data":{"attributes":{"reputation":0,"last_analysis_stats":{"malicious":0,"suspicious":0,"harmless":50,"undetected":5}}}}`)
}

func (m *MockIntelServer) handleVirusTotalDomain(w http.ResponseWriter, r *http.Request) {
	m.capture(r, r.Header.Get("x-apikey"))
	if m.interfere(w) {
		return
	}

	domain := strings.ToLower(strings.TrimPrefix(r.URL.Path, "/api/v3/domains/"))
	if m.writeScripted(w, "domain:"+domain) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"data":{"attributes":{"reputation":0,"last_analysis_stats":{"malicious":0,"suspicious":0,"harmless":60,"undetected":0}}}}`)
}

// interfere applies the configured delay and failure, returning true if the
// request was answered with a failure.
func (m *MockIntelServer) interfere(w http.ResponseWriter) bool {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.shouldFail {
		w.WriteHeader(m.failStatus)
		return true
	}
	return false
}

func (m *MockIntelServer) writeScripted(w http.ResponseWriter, key string) bool {
	m.responsesMu.RLock()
	resp, ok := m.responses[key]
	m.responsesMu.RUnlock()
	if !ok {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	fmt.Fprint(w, resp.Body)
	return true
}

func (m *MockIntelServer) capture(r *http.Request, apiKey string) {
	m.requestsMu.Lock()
	defer m.requestsMu.Unlock()
	m.requests = append(m.requests, CapturedRequest{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.RawQuery,
		APIKey:     apiKey,
		CapturedAt: time.Now(),
	})
}

// SetResponse scripts a response for a specific indicator. Keys are
// "ip:<value>" or "domain:<value>".
func (m *MockIntelServer) SetResponse(key string, resp MockResponse) {
	m.responsesMu.Lock()
	defer m.responsesMu.Unlock()
	m.responses[key] = resp
}

// SetShouldFail makes every subsequent request fail with the given status.
func (m *MockIntelServer) SetShouldFail(shouldFail bool, statusCode int) {
	m.shouldFail = shouldFail
	m.failStatus = statusCode
}

// SetDelay delays every subsequent response, for timeout testing.
func (m *MockIntelServer) SetDelay(delay time.Duration) {
	m.delay = delay
}

// Requests returns a copy of all captured requests.
func (m *MockIntelServer) Requests() []CapturedRequest {
	m.requestsMu.RLock()
	defer m.requestsMu.RUnlock()
	requests := make([]CapturedRequest, len(m.requests))
	copy(requests, m.requests)
	return requests
}

// RequestCount returns the number of requests received so far.
func (m *MockIntelServer) RequestCount() int {
	m.requestsMu.RLock()
	defer m.requestsMu.RUnlock()
	return len(m.requests)
}

// ClearRequests drops all captured requests.
func (m *MockIntelServer) ClearRequests() {
	m.requestsMu.Lock()
	defer m.requestsMu.Unlock()
	m.requests = nil
}

// URL returns the base URL of the mock server.
func (m *MockIntelServer) URL() string { return m.server.URL }

// Close stops the mock server.
func (m *MockIntelServer) Close() { m.server.Close() }
