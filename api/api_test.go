package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"argus/core"
	"argus/storage"
)

type fakeEnricher struct {
	enriched *core.EnrichedAlert
	err      error
	got      core.RawAlert
}

func (f *fakeEnricher) EnrichAlert(_ context.Context, alert core.RawAlert) (*core.EnrichedAlert, error) {
	f.got = alert
	return f.enriched, f.err
}

type fakeBatchRunner struct {
	summary     *core.RunSummary
	gotLimit    int
	gotSeverity string
}

func (f *fakeBatchRunner) ProcessBatch(_ context.Context, limit, _ int, severity string) *core.RunSummary {
	f.gotLimit = limit
	f.gotSeverity = severity
	return f.summary
}

func enrichedFixture() *core.EnrichedAlert {
	return &core.EnrichedAlert{
		ID:          "rec-1",
		Original:    core.RawAlert{"message": "traffic from 45.77.23.11"},
		IsMalicious: true,
		ThreatScore: 85,
		Recommendations: []string{
			"Block malicious IP: 45.77.23.11 (Threat Score: 85)",
		},
		EnrichedAt: time.Now().UTC(),
	}
}

func TestEnrichEndpoint(t *testing.T) {
	enricher := &fakeEnricher{enriched: enrichedFixture()}
	api := NewAPI(enricher, nil, nil, zap.NewNop().Sugar())

	req := httptest.NewRequest("POST", "/api/enrich",
		strings.NewReader(`{"message":"traffic from 45.77.23.11"}`))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var got core.EnrichedAlert
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, "rec-1", got.ID)
	assert.True(t, got.IsMalicious)
	assert.Equal(t, 85, got.ThreatScore)

	assert.Equal(t, "traffic from 45.77.23.11", enricher.got["message"])
}

func TestEnrichEndpointBadPayload(t *testing.T) {
	api := NewAPI(&fakeEnricher{}, nil, nil, zap.NewNop().Sugar())

	for _, body := range []string{`not json`, `{}`} {
		req := httptest.NewRequest("POST", "/api/enrich", strings.NewReader(body))
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestEnrichEndpointEngineFailure(t *testing.T) {
	api := NewAPI(&fakeEnricher{err: errors.New("boom")}, nil, nil, zap.NewNop().Sugar())

	req := httptest.NewRequest("POST", "/api/enrich", strings.NewReader(`{"message":"x"}`))
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestBatchEndpoint(t *testing.T) {
	runner := &fakeBatchRunner{
		summary: &core.RunSummary{Processed: 3, MaliciousDetected: 1, Data: []*core.EnrichedAlert{}},
	}
	api := NewAPI(&fakeEnricher{}, runner, nil, zap.NewNop().Sugar())

	req := httptest.NewRequest("POST", "/api/enrich/batch?limit=10&severity=high", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, runner.gotLimit)
	assert.Equal(t, "high", runner.gotSeverity)

	var summary core.RunSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summary))
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, 1, summary.MaliciousDetected)
}

func TestGetAlertEndpoints(t *testing.T) {
	sink := storage.NewMemorySink()
	fixture := enrichedFixture()
	require.NoError(t, sink.Store(context.Background(), fixture))

	api := NewAPI(&fakeEnricher{}, nil, sink, zap.NewNop().Sugar())

	t.Run("by id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/alerts/rec-1", nil)
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got core.EnrichedAlert
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, fixture.ID, got.ID)
	})

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/alerts/no-such-id", nil)
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("recent list", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/alerts?limit=5", nil)
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var got []*core.EnrichedAlert
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Len(t, got, 1)
	})
}

func TestPersistenceDisabled(t *testing.T) {
	api := NewAPI(&fakeEnricher{}, nil, nil, zap.NewNop().Sugar())

	req := httptest.NewRequest("GET", "/api/alerts", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	api := NewAPI(&fakeEnricher{}, nil, nil, zap.NewNop().Sugar())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
