package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plotkeeper.ai/internal/config"
	persistlog "plotkeeper.ai/internal/persistence/log"
	"plotkeeper.ai/internal/plot"
	"plotkeeper.ai/internal/protocol"
)

type testServer struct {
	url      string
	rt       *runtimeStore
	auditDir string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		Backend:   config.BackendSQLite,
		SQLite:    config.SQLiteConfig{Path: filepath.Join(dir, "plots.db")},
		CacheSize: 128,
		Workers:   1,
		AuditDir:  filepath.Join(dir, "audit"),
	}
	reg := prometheus.NewRegistry()
	rt, err := openRuntimeStore(cfg, reg, zap.NewNop().Sugar())
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	(&api{store: rt.store, log: zap.NewNop().Sugar(), timeout: 5 * time.Second}).register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		_ = rt.Close()
	})
	return &testServer{url: ts.URL, rt: rt, auditDir: cfg.AuditDir}
}

func do(t *testing.T, method, url, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, b
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(b, &v), string(b))
	return v
}

func TestAPI_ClaimLifecycle(t *testing.T) {
	s := newTestServer(t)

	status, b := do(t, http.MethodPost, s.url+"/v1/plots", `{"level":"world","x":0,"z":0,"owner":"alice","helpers":["bob"]}`)
	require.Equal(t, http.StatusAccepted, status, string(b))
	acc := decode[protocol.AcceptedResponse](t, b)
	require.True(t, acc.Accepted)
	require.Equal(t, plot.UnsavedID, acc.Plot.ID)

	status, b = do(t, http.MethodGet, s.url+"/v1/plots/world/0/0?cached=1", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "alice", decode[plot.Plot](t, b).Owner)

	status, b = do(t, http.MethodGet, s.url+"/v1/plots/world/0/0", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []string{"bob"}, decode[plot.Plot](t, b).Helpers)

	status, b = do(t, http.MethodGet, s.url+"/v1/levels/world/next", "")
	require.Equal(t, http.StatusOK, status, string(b))
	next := decode[protocol.NextResponse](t, b)
	require.Equal(t, [2]int{0, 1}, [2]int{next.Plot.X, next.Plot.Z})

	status, b = do(t, http.MethodGet, s.url+"/v1/levels/world/next?limit=1", "")
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, protocol.ErrNoResource, decode[protocol.ErrorResponse](t, b).Code)

	status, b = do(t, http.MethodGet, s.url+"/v1/owners/alice", "")
	require.Equal(t, http.StatusOK, status)
	owned := decode[protocol.OwnerResponse](t, b)
	require.Len(t, owned.Plots, 1)
	require.Equal(t, "world", owned.Plots[0].Level)

	status, _ = do(t, http.MethodDelete, s.url+"/v1/plots/world/0/0", "")
	require.Equal(t, http.StatusAccepted, status)

	status, b = do(t, http.MethodGet, s.url+"/v1/plots/world/0/0?cached=1", "")
	require.Equal(t, http.StatusOK, status)
	require.True(t, decode[plot.Plot](t, b).IsEmpty())

	status, b = do(t, http.MethodGet, s.url+"/metrics", "")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(b), "plots_next_free_total")

	require.NoError(t, s.rt.Close())
	claims, err := persistlog.ReadClaims(s.auditDir)
	require.NoError(t, err)
	require.Len(t, claims, 2)
	require.Equal(t, "save", claims[0].Action)
	require.Equal(t, "delete", claims[1].Action)
}

func TestAPI_RejectsBadInput(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		method, path, body string
		status             int
		code               string
	}{
		{http.MethodPost, "/v1/plots", `{"level":"world","x":0,"z":0,"helpers":["a,b"]}`, http.StatusBadRequest, protocol.ErrProtoBadRequest},
		{http.MethodPost, "/v1/plots", `not json`, http.StatusBadRequest, protocol.ErrProtoBadRequest},
		{http.MethodGet, "/v1/plots/world/a/0", "", http.StatusBadRequest, protocol.ErrBadRequest},
		{http.MethodDelete, "/v1/plots/world/0/0?id=x", "", http.StatusBadRequest, protocol.ErrBadRequest},
		{http.MethodGet, "/v1/levels/world/next?limit=abc", "", http.StatusBadRequest, protocol.ErrBadRequest},
	}
	for _, tc := range cases {
		status, b := do(t, tc.method, s.url+tc.path, tc.body)
		require.Equal(t, tc.status, status, "%s %s: %s", tc.method, tc.path, b)
		require.Equal(t, tc.code, decode[protocol.ErrorResponse](t, b).Code)
	}

	// Nothing reached the store.
	status, b := do(t, http.MethodGet, s.url+"/v1/owners/alice", "")
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, decode[protocol.OwnerResponse](t, b).Plots)
}

func TestAwait_Timeout(t *testing.T) {
	ch := make(chan int)
	_, err := await(context.Background(), 10*time.Millisecond, ch)
	require.ErrorIs(t, err, errStoreTimeout)
}

func TestEnvBool(t *testing.T) {
	t.Setenv("PLOTS_TEST_FLAG", "yes")
	require.True(t, envBool("PLOTS_TEST_FLAG", false))
	t.Setenv("PLOTS_TEST_FLAG", "nonsense")
	require.False(t, envBool("PLOTS_TEST_FLAG", false))
}
