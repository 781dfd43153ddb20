package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockManager emulates the Wazuh manager API endpoints the source touches.
type mockManager struct {
	server *httptest.Server

	mu             sync.Mutex
	authCalls      int
	alertCalls     int
	lastQuery      url.Values
	tokenLifetime  time.Duration
	rejectNextWith int
	items          []map[string]interface{}
}

func newMockManager(t *testing.T) *mockManager {
	t.Helper()
	m := &mockManager{tokenLifetime: time.Hour}

	mux := http.NewServeMux()
	mux.HandleFunc("/security/user/authenticate", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "argus" || pass != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		m.mu.Lock()
		m.authCalls++
		lifetime := m.tokenLifetime
		m.mu.Unlock()

		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"exp": time.Now().Add(lifetime).Unix(),
			"sub": "argus",
		}).SignedString([]byte("manager-secret"))
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"token":"%s"}}`, token)
	})
	mux.HandleFunc("/alerts", func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.alertCalls++
		m.lastQuery = r.URL.Query()
		reject := m.rejectNextWith
		m.rejectNextWith = 0
		items := m.items
		m.mu.Unlock()

		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if reject != 0 {
			w.WriteHeader(reject)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		body := `{"data":{"affected_items":[`
		for i := range items {
			if i > 0 {
				body += ","
			}
			body += `{"id":"alert-` + fmt.Sprint(i) + `"}`
		}
		body += fmt.Sprintf(`],"total_affected_items":%d}}`, len(items))
		fmt.Fprint(w, body)
	})

	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

func (m *mockManager) counts() (auth, alerts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authCalls, m.alertCalls
}

func (m *mockManager) query() url.Values {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastQuery
}

func newTestSource(t *testing.T, m *mockManager) *WazuhSource {
	t.Helper()
	return NewWazuhSource(WazuhConfig{
		BaseURL:  m.server.URL,
		Username: "argus",
		Password: "s3cret",
	}, zap.NewNop().Sugar())
}

func TestFetchAlerts(t *testing.T) {
	manager := newMockManager(t)
	manager.items = []map[string]interface{}{{"id": "a"}, {"id": "b"}}
	src := newTestSource(t, manager)

	alerts, err := src.FetchAlerts(context.Background(), 25, 0, "")
	require.NoError(t, err)
	assert.Len(t, alerts, 2)

	query := manager.query()
	assert.Equal(t, "25", query.Get("limit"))
	assert.Equal(t, "0", query.Get("offset"))
	assert.Equal(t, "-timestamp", query.Get("sort"))
	assert.Empty(t, query.Get("q"))
}

func TestFetchAlertsSeverityFilter(t *testing.T) {
	manager := newMockManager(t)
	src := newTestSource(t, manager)

	tests := []struct {
		severity string
		wantQ    string
	}{
		{"low", "rule.level>=0;rule.level<=4"},
		{"medium", "rule.level>=5;rule.level<=7"},
		{"high", "rule.level>=8;rule.level<=11"},
		{"critical", "rule.level>=12;rule.level<=15"},
	}
	for _, tt := range tests {
		t.Run(tt.severity, func(t *testing.T) {
			_, err := src.FetchAlerts(context.Background(), 10, 0, tt.severity)
			require.NoError(t, err)
			assert.Equal(t, tt.wantQ, manager.query().Get("q"))
		})
	}
}

func TestFetchAlertsUnknownSeverity(t *testing.T) {
	manager := newMockManager(t)
	src := newTestSource(t, manager)

	_, err := src.FetchAlerts(context.Background(), 10, 0, "apocalyptic")
	assert.Error(t, err)

	auth, alerts := manager.counts()
	assert.Equal(t, 0, auth)
	assert.Equal(t, 0, alerts)
}

func TestFetchAlertsReusesToken(t *testing.T) {
	manager := newMockManager(t)
	src := newTestSource(t, manager)

	_, err := src.FetchAlerts(context.Background(), 10, 0, "")
	require.NoError(t, err)
	_, err = src.FetchAlerts(context.Background(), 10, 0, "")
	require.NoError(t, err)

	auth, alerts := manager.counts()
	assert.Equal(t, 1, auth, "valid token must be reused")
	assert.Equal(t, 2, alerts)
}

func TestFetchAlertsReauthenticatesNearExpiry(t *testing.T) {
	manager := newMockManager(t)
	manager.tokenLifetime = 5 * time.Second // inside the slack window
	src := newTestSource(t, manager)

	_, err := src.FetchAlerts(context.Background(), 10, 0, "")
	require.NoError(t, err)
	_, err = src.FetchAlerts(context.Background(), 10, 0, "")
	require.NoError(t, err)

	auth, _ := manager.counts()
	assert.Equal(t, 2, auth, "near-expiry token must not be reused")
}

func TestFetchAlertsRetriesOnceOn401(t *testing.T) {
	manager := newMockManager(t)
	manager.items = []map[string]interface{}{{"id": "a"}}
	manager.rejectNextWith = http.StatusUnauthorized
	src := newTestSource(t, manager)

	alerts, err := src.FetchAlerts(context.Background(), 10, 0, "")
	require.NoError(t, err)
	assert.Len(t, alerts, 1)

	auth, alertCalls := manager.counts()
	assert.Equal(t, 2, auth, "a 401 triggers exactly one re-authentication")
	assert.Equal(t, 2, alertCalls)
}

func TestFetchAlertsServerError(t *testing.T) {
	manager := newMockManager(t)
	manager.rejectNextWith = http.StatusInternalServerError
	src := newTestSource(t, manager)

	_, err := src.FetchAlerts(context.Background(), 10, 0, "")
	assert.Error(t, err)
}

func TestFetchAlertsNotConfigured(t *testing.T) {
	src := NewWazuhSource(WazuhConfig{BaseURL: "http://manager"}, zap.NewNop().Sugar())

	_, err := src.FetchAlerts(context.Background(), 10, 0, "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
