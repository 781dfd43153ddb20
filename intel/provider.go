// Package intel implements threat intelligence providers and the normalized
// result type they return. Each provider performs one network round trip per
// indicator and maps its backend's upstream shape into a Result; failures are
// values, never errors or panics crossing the provider boundary.
package intel

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"argus/core"
)

// Status classifies a provider lookup outcome.
type Status string

const (
	// StatusSuccess means the backend answered and the result carries a
	// verdict contribution plus normalized fields.
	StatusSuccess Status = "success"
	// StatusUnavailable means the provider could not be consulted for an
	// expected reason: missing credential or open circuit. No network call
	// was attempted (or allowed).
	StatusUnavailable Status = "unavailable"
	// StatusError means the call was attempted and failed: transport error,
	// non-2xx response, or a malformed body.
	StatusError Status = "error"
)

// Result is the normalized outcome of one provider lookup. For a success,
// Malicious and Score carry the backend-specific interpretation of the raw
// response and Fields the normalized per-source data; for anything else,
// Detail explains why the provider contributed nothing.
type Result struct {
	Provider  string                 `json:"provider"`
	Status    Status                 `json:"status"`
	Malicious bool                   `json:"malicious"`
	Score     int                    `json:"score"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Detail    string                 `json:"detail,omitempty"`
}

// Success builds a successful result carrying a verdict contribution.
func Success(provider string, malicious bool, score int, fields map[string]interface{}) Result {
	return Result{
		Provider:  provider,
		Status:    StatusSuccess,
		Malicious: malicious,
		Score:     score,
		Fields:    fields,
	}
}

// Unavailable builds a result for a provider that was not consulted.
func Unavailable(provider, reason string) Result {
	return Result{Provider: provider, Status: StatusUnavailable, Detail: reason}
}

// Error builds a result for a provider call that failed.
func Error(provider, detail string) Result {
	return Result{Provider: provider, Status: StatusError, Detail: detail}
}

// Provider is the threat intelligence backend contract. Lookup must return
// within the provider's own deadline and must never panic or leak a raw
// error; every outcome is expressed as a Result.
type Provider interface {
	Name() string
	Supports(kind core.IndicatorKind) bool
	Lookup(ctx context.Context, value string, kind core.IndicatorKind) Result
}

// Options configures a concrete provider.
type Options struct {
	// APIKey is the backend credential. A provider without a key
	// short-circuits every lookup to Unavailable.
	APIKey string
	// BaseURL overrides the backend endpoint. Defaults to the public API;
	// tests point it at a mock server.
	BaseURL string
	// Timeout is the per-call deadline. Defaults to 10s.
	Timeout time.Duration
	// RatePerSec is the token bucket refill rate for outbound calls.
	// Defaults to 4/s.
	RatePerSec float64
	// Burst is the token bucket size. Defaults to 4.
	Burst int
}

const (
	defaultTimeout    = 10 * time.Second
	defaultRatePerSec = 4.0
	defaultBurst      = 4
)

func (o *Options) applyDefaults(defaultBaseURL string) {
	if o.BaseURL == "" {
		o.BaseURL = defaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.RatePerSec <= 0 {
		o.RatePerSec = defaultRatePerSec
	}
	if o.Burst <= 0 {
		o.Burst = defaultBurst
	}
}

// newHTTPClient builds the HTTP client shared by all providers.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
