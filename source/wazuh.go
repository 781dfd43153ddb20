// Package source pulls raw alerts from an upstream SIEM manager.
package source

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"argus/core"
)

// ErrNotConfigured is returned when the source is missing its endpoint or
// credentials. No network I/O happens in that case.
var ErrNotConfigured = errors.New("alert source not configured")

// severityBounds maps a severity label to an inclusive rule level range.
var severityBounds = map[string][2]int{
	"low":      {0, 4},
	"medium":   {5, 7},
	"high":     {8, 11},
	"critical": {12, 15},
}

// tokenSlack is how close to expiry a cached token is still trusted.
const tokenSlack = 30 * time.Second

// WazuhConfig configures the Wazuh manager client.
type WazuhConfig struct {
	BaseURL  string
	Username string
	Password string
	// Timeout is the per-request deadline. Defaults to 10s.
	Timeout time.Duration
	// InsecureSkipVerify disables certificate verification. Manager
	// deployments with self-signed certificates need this.
	InsecureSkipVerify bool
}

// WazuhSource fetches alerts from a Wazuh manager. Authentication tokens are
// cached until shortly before their JWT expiry and refreshed on demand; a 401
// triggers exactly one re-authentication and retry.
type WazuhSource struct {
	cfg    WazuhConfig
	client *http.Client
	logger *zap.SugaredLogger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewWazuhSource creates a Wazuh alert source.
func NewWazuhSource(cfg WazuhConfig, logger *zap.SugaredLogger) *WazuhSource {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}
	return &WazuhSource{
		cfg:    cfg,
		client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		logger: logger,
	}
}

// FetchAlerts returns up to limit alerts sorted newest first. An empty
// severity fetches all levels; otherwise only alerts whose rule level falls
// in the severity's range are returned.
func (s *WazuhSource) FetchAlerts(ctx context.Context, limit, offset int, severity string) ([]core.RawAlert, error) {
	if s.cfg.BaseURL == "" || s.cfg.Username == "" || s.cfg.Password == "" {
		return nil, ErrNotConfigured
	}
	if severity != "" {
		if _, ok := severityBounds[severity]; !ok {
			return nil, fmt.Errorf("unknown severity %q", severity)
		}
	}

	token, err := s.ensureSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("authenticate with Wazuh: %w", err)
	}

	alerts, status, err := s.fetchPage(ctx, token, limit, offset, severity)
	if status == http.StatusUnauthorized {
		// Token revoked server-side before its expiry. Re-authenticate
		// once; a second 401 is a real failure.
		s.invalidateToken()
		token, err = s.ensureSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("re-authenticate with Wazuh: %w", err)
		}
		alerts, _, err = s.fetchPage(ctx, token, limit, offset, severity)
	}
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

func (s *WazuhSource) fetchPage(ctx context.Context, token string, limit, offset int, severity string) ([]core.RawAlert, int, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprintf("%d", limit))
	query.Set("offset", fmt.Sprintf("%d", offset))
	query.Set("sort", "-timestamp")
	if bounds, ok := severityBounds[severity]; ok && severity != "" {
		query.Set("q", fmt.Sprintf("rule.level>=%d;rule.level<=%d", bounds[0], bounds[1]))
	}

	endpoint := fmt.Sprintf("%s/alerts?%s", s.cfg.BaseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build alerts request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("query Wazuh alerts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("Wazuh alerts returned status %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			AffectedItems []core.RawAlert `json:"affected_items"`
			TotalItems    int             `json:"total_affected_items"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decode alerts response: %w", err)
	}
	return payload.Data.AffectedItems, resp.StatusCode, nil
}

// ensureSession returns a valid bearer token, authenticating only when the
// cached one is missing or about to expire.
func (s *WazuhSource) ensureSession(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Until(s.tokenExpiry) > tokenSlack {
		return s.token, nil
	}

	endpoint := fmt.Sprintf("%s/security/user/authenticate", s.cfg.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build auth request: %w", err)
	}
	req.SetBasicAuth(s.cfg.Username, s.cfg.Password)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("authentication returned status %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if payload.Data.Token == "" {
		return "", errors.New("authentication response carried no token")
	}

	s.token = payload.Data.Token
	s.tokenExpiry = tokenExpiry(s.token)
	s.logger.Debugw("Authenticated with Wazuh manager", "token_expiry", s.tokenExpiry)
	return s.token, nil
}

func (s *WazuhSource) invalidateToken() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.tokenExpiry = time.Time{}
}

// tokenExpiry reads the exp claim out of the manager's JWT without verifying
// the signature; the claim only schedules the next re-authentication. Tokens
// without a readable exp fall back to the manager's default 900s lifetime.
func tokenExpiry(token string) time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err == nil {
		if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return time.Now().Add(900 * time.Second)
}
