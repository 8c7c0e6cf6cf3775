package statusd

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"revealer/internal/diag"
	"revealer/internal/rate"
	"revealer/internal/session"
)

func TestRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := diag.NewMetrics(reg)
	m.RoundsTotal.Inc()

	b := NewBoard()
	b.Observe(session.Progress{State: session.StateProbing, Puzzle: 812, Round: 3, Resolved: 5, Total: 9, Text: "Wikipedia fox"})
	r := Router(b, reg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var p session.Progress
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, session.StateProbing, p.State)
	assert.Equal(t, 812, p.Puzzle)
	assert.Equal(t, 5, p.Resolved)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "revealer_rounds_total 1")
}

func TestServerLifecycle(t *testing.T) {
	b := NewBoard()
	s, err := Start("127.0.0.1:0", b, prometheus.NewRegistry())
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), `"state":"START"`), string(body))
}

func TestStatusCarriesCorrIDAndGate(t *testing.T) {
	now := time.Unix(0, 0)
	g := rate.NewGate(map[rate.LimitKey]rate.Limits{"httpscore:x": {RPM: 600, Burst: 4}}, func() time.Time { return now })
	b := NewBoard()
	b.SetCorrID("run-1")
	b.WatchGate(g.(rate.Snapshoter), "httpscore:x")
	r := Router(b, prometheus.NewRegistry())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var st Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "run-1", st.CorrID)
	assert.Equal(t, session.StateStart, st.State)
	require.NotNil(t, st.GateTokens)
	assert.Equal(t, 4.0, *st.GateTokens)

	// 未限流的分组不输出额度
	b.WatchGate(g.(rate.Snapshoter), "other")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.NotContains(t, w.Body.String(), "gate_tokens")
}
