package intel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"argus/core"
	"argus/metrics"

	"golang.org/x/time/rate"
)

// AbuseIPDBProvider is the reputation-score backend: it returns an abuse
// confidence number 0-100 for IP addresses. An indicator is malicious when
// the confidence exceeds 50, in which case the confidence itself is the
// contributed threat score.
type AbuseIPDBProvider struct {
	opts    Options
	client  *http.Client
	limiter *rate.Limiter
}

// NewAbuseIPDBProvider creates a new AbuseIPDB provider.
func NewAbuseIPDBProvider(opts Options) *AbuseIPDBProvider {
	opts.applyDefaults("https://api.abuseipdb.com")
	return &AbuseIPDBProvider{
		opts:    opts,
		client:  newHTTPClient(opts.Timeout),
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
	}
}

// Name returns the provider name.
func (p *AbuseIPDBProvider) Name() string { return "abuseipdb" }

// Supports reports whether the provider can look up the given kind.
func (p *AbuseIPDBProvider) Supports(kind core.IndicatorKind) bool {
	return kind == core.IndicatorIP
}

// Lookup checks an IP against AbuseIPDB.
func (p *AbuseIPDBProvider) Lookup(ctx context.Context, value string, kind core.IndicatorKind) Result {
	if kind != core.IndicatorIP {
		return p.unavailable("only IP addresses are supported")
	}
	if p.opts.APIKey == "" {
		return p.unavailable("API key not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		return p.err(fmt.Sprintf("rate limiter wait: %v", err))
	}

	endpoint := fmt.Sprintf("%s/api/v2/check?ipAddress=%s&maxAgeInDays=90", p.opts.BaseURL, url.QueryEscape(value))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return p.err(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("Key", p.opts.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return p.err(fmt.Sprintf("query AbuseIPDB: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return p.err(fmt.Sprintf("AbuseIPDB returned status %d", resp.StatusCode))
	}

	var payload struct {
		Data struct {
			AbuseConfidenceScore int  `json:"abuseConfidenceScore"`
			TotalReports         int  `json:"totalReports"`
			IsWhitelisted        bool `json:"isWhitelisted"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return p.err(fmt.Sprintf("decode response: %v", err))
	}

	confidence := payload.Data.AbuseConfidenceScore
	malicious := confidence > 50

	// Only a malicious verdict contributes a score; the raw confidence is
	// still recorded for analysts.
	score := 0
	if malicious {
		score = confidence
	}

	metrics.ProviderLookups.WithLabelValues(p.Name(), string(StatusSuccess)).Inc()
	return Success(p.Name(), malicious, score, map[string]interface{}{
		"confidence_score": confidence,
		"total_reports":    payload.Data.TotalReports,
	})
}

func (p *AbuseIPDBProvider) unavailable(reason string) Result {
	metrics.ProviderLookups.WithLabelValues(p.Name(), string(StatusUnavailable)).Inc()
	return Unavailable(p.Name(), reason)
}

func (p *AbuseIPDBProvider) err(detail string) Result {
	metrics.ProviderLookups.WithLabelValues(p.Name(), string(StatusError)).Inc()
	return Error(p.Name(), detail)
}

// OTXProvider is the pulse-count backend: AlienVault OTX reports how many
// community threat pulses reference an indicator. Any pulse makes the
// indicator malicious; since the backend carries no 0-100 score of its own,
// a fixed fallback score is contributed (75 for IPs, 70 for domains).
type OTXProvider struct {
	opts    Options
	client  *http.Client
	limiter *rate.Limiter
}

const (
	otxIPFallbackScore     = 75
	otxDomainFallbackScore = 70
)

// NewOTXProvider creates a new AlienVault OTX provider.
func NewOTXProvider(opts Options) *OTXProvider {
	opts.applyDefaults("https://otx.alienvault.com")
	return &OTXProvider{
		opts:    opts,
		client:  newHTTPClient(opts.Timeout),
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
	}
}

// Name returns the provider name.
func (p *OTXProvider) Name() string { return "otx" }

// Supports reports whether the provider can look up the given kind.
func (p *OTXProvider) Supports(kind core.IndicatorKind) bool {
	return kind == core.IndicatorIP || kind == core.IndicatorDomain
}

// Lookup checks an indicator against AlienVault OTX.
func (p *OTXProvider) Lookup(ctx context.Context, value string, kind core.IndicatorKind) Result {
	var endpoint string
	switch kind {
	case core.IndicatorIP:
		endpoint = fmt.Sprintf("%s/api/v1/indicators/IPv4/%s/general", p.opts.BaseURL, url.PathEscape(value))
	case core.IndicatorDomain:
		endpoint = fmt.Sprintf("%s/api/v1/indicators/domain/%s/general", p.opts.BaseURL, url.PathEscape(value))
	default:
		return p.unavailable(fmt.Sprintf("unsupported indicator kind: %s", kind))
	}
	if p.opts.APIKey == "" {
		return p.unavailable("API key not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		return p.err(fmt.Sprintf("rate limiter wait: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return p.err(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("X-OTX-API-KEY", p.opts.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return p.err(fmt.Sprintf("query AlienVault OTX: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		// Unknown to OTX: clean result
		metrics.ProviderLookups.WithLabelValues(p.Name(), string(StatusSuccess)).Inc()
		return Success(p.Name(), false, 0, map[string]interface{}{"pulse_count": 0})
	}
	if resp.StatusCode != http.StatusOK {
		return p.err(fmt.Sprintf("AlienVault OTX returned status %d", resp.StatusCode))
	}

	var payload struct {
		PulseInfo struct {
			Count  int `json:"count"`
			Pulses []struct {
				Name string `json:"name"`
			} `json:"pulses"`
		} `json:"pulse_info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return p.err(fmt.Sprintf("decode response: %v", err))
	}

	pulseCount := payload.PulseInfo.Count
	if pulseCount == 0 {
		pulseCount = len(payload.PulseInfo.Pulses)
	}

	malicious := pulseCount > 0
	score := 0
	if malicious {
		if kind == core.IndicatorIP {
			score = otxIPFallbackScore
		} else {
			score = otxDomainFallbackScore
		}
	}

	metrics.ProviderLookups.WithLabelValues(p.Name(), string(StatusSuccess)).Inc()
	return Success(p.Name(), malicious, score, map[string]interface{}{
		"pulse_count": pulseCount,
	})
}

func (p *OTXProvider) unavailable(reason string) Result {
	metrics.ProviderLookups.WithLabelValues(p.Name(), string(StatusUnavailable)).Inc()
	return Unavailable(p.Name(), reason)
}

func (p *OTXProvider) err(detail string) Result {
	metrics.ProviderLookups.WithLabelValues(p.Name(), string(StatusError)).Inc()
	return Error(p.Name(), detail)
}

// VirusTotalProvider is the detection-ratio backend: a multi-engine scanning
// aggregator. For domains an indicator is malicious iff at least one engine
// flags it, and the contributed score is the detection percentage. For IPs
// only the reputation number is recorded; it contributes no verdict.
type VirusTotalProvider struct {
	opts           Options
	client         *http.Client
	limiter        *rate.Limiter
	circuitBreaker *core.CircuitBreaker
}

// NewVirusTotalProvider creates a new VirusTotal provider.
func NewVirusTotalProvider(opts Options) *VirusTotalProvider {
	opts.applyDefaults("https://www.virustotal.com")
	return &VirusTotalProvider{
		opts:           opts,
		client:         newHTTPClient(opts.Timeout),
		limiter:        rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.Burst),
		circuitBreaker: core.MustNewCircuitBreaker(core.DefaultCircuitBreakerConfig()),
	}
}

// Name returns the provider name.
func (p *VirusTotalProvider) Name() string { return "virustotal" }

// Supports reports whether the provider can look up the given kind.
func (p *VirusTotalProvider) Supports(kind core.IndicatorKind) bool {
	return kind == core.IndicatorIP || kind == core.IndicatorDomain
}

// Lookup checks an indicator against VirusTotal.
func (p *VirusTotalProvider) Lookup(ctx context.Context, value string, kind core.IndicatorKind) Result {
	var endpoint string
	switch kind {
	case core.IndicatorIP:
		endpoint = fmt.Sprintf("%s/api/v3/ip_addresses/%s", p.opts.BaseURL, url.PathEscape(value))
	case core.IndicatorDomain:
		endpoint = fmt.Sprintf("%s/api/v3/domains/%s", p.opts.BaseURL, url.PathEscape(value))
	default:
		return p.unavailable(fmt.Sprintf("unsupported indicator kind: %s", kind))
	}
	if p.opts.APIKey == "" {
		return p.unavailable("API key not configured")
	}
	if err := p.circuitBreaker.Allow(); err != nil {
		return p.unavailable("circuit breaker open")
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		return p.err(fmt.Sprintf("rate limiter wait: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return p.err(fmt.Sprintf("build request: %v", err))
	}
	req.Header.Set("x-apikey", p.opts.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		p.circuitBreaker.RecordFailure()
		return p.err(fmt.Sprintf("query VirusTotal: %v", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		p.circuitBreaker.RecordFailure()
		return p.err("VirusTotal returned status 429 (rate limited)")
	case resp.StatusCode == http.StatusNotFound:
		// Unknown to VirusTotal: clean result
		p.circuitBreaker.RecordSuccess()
		metrics.ProviderLookups.WithLabelValues(p.Name(), string(StatusSuccess)).Inc()
		return Success(p.Name(), false, 0, map[string]interface{}{})
	case resp.StatusCode != http.StatusOK:
		p.circuitBreaker.RecordFailure()
		return p.err(fmt.Sprintf("VirusTotal returned status %d", resp.StatusCode))
	}

	p.circuitBreaker.RecordSuccess()

	var payload struct {
		Data struct {
			Attributes struct {
				Reputation        int `json:"reputation"`
				LastAnalysisStats struct {
					Malicious  int `json:"malicious"`
					Suspicious int `json:"suspicious"`
					Harmless   int `json:"harmless"`
					Undetected int `json:"undetected"`
				} `json:"last_analysis_stats"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return p.err(fmt.Sprintf("decode response: %v", err))
	}

	attrs := payload.Data.Attributes
	metrics.ProviderLookups.WithLabelValues(p.Name(), string(StatusSuccess)).Inc()

	if kind == core.IndicatorIP {
		// Reputation alone carries no verdict; it is recorded for analysts.
		return Success(p.Name(), false, 0, map[string]interface{}{
			"reputation": attrs.Reputation,
		})
	}

	stats := attrs.LastAnalysisStats
	total := stats.Malicious + stats.Suspicious + stats.Harmless + stats.Undetected
	malicious := stats.Malicious > 0

	score := 0
	if malicious && total > 0 {
		score = stats.Malicious * 100 / total
		if score > 100 {
			score = 100
		}
	}

	return Success(p.Name(), malicious, score, map[string]interface{}{
		"malicious":      stats.Malicious,
		"suspicious":     stats.Suspicious,
		"total_engines":  total,
		"detection_rate": fmt.Sprintf("%d/%d", stats.Malicious, total),
		"reputation":     attrs.Reputation,
	})
}

func (p *VirusTotalProvider) unavailable(reason string) Result {
	metrics.ProviderLookups.WithLabelValues(p.Name(), string(StatusUnavailable)).Inc()
	return Unavailable(p.Name(), reason)
}

func (p *VirusTotalProvider) err(detail string) Result {
	metrics.ProviderLookups.WithLabelValues(p.Name(), string(StatusError)).Inc()
	return Error(p.Name(), detail)
}
