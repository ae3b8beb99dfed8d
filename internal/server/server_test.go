package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"system-snapshot/internal/config"
	"system-snapshot/internal/metrics"
	"system-snapshot/internal/storage"
)

const testHistory = `{"snapshots": [
  {"timestamp": "t1", "cpu_usage_pct": 10},
  {"timestamp": "t2", "cpu_usage_pct": 20},
  {"timestamp": "t3", "cpu_usage_pct": 30},
  {"timestamp": "t4", "cpu_usage_pct": 40}
]}`

func newTestServer(t *testing.T, apiKey string, historyLimit int, content string) *Server {
	t.Helper()

	dir := t.TempDir()
	if content != "" {
		path := filepath.Join(dir, storage.HistoryFileName)
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	cfg := &config.Config{
		SnapshotDir:  dir,
		HistoryLimit: historyLimit,
		API:          config.API{Key: apiKey, BindAddress: "127.0.0.1:0"},
	}
	store := storage.NewStore(dir, historyLimit, zerolog.Nop())
	return New(cfg, store, zerolog.Nop())
}

func doRequest(s *Server, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeSnapshots(t *testing.T, rec *httptest.ResponseRecorder) []string {
	t.Helper()
	var snaps []metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snaps))

	timestamps := make([]string, 0, len(snaps))
	for _, snap := range snaps {
		timestamps = append(timestamps, snap.Timestamp.String())
	}
	return timestamps
}

func TestAuthMiddleware(t *testing.T) {
	s := newTestServer(t, "secret", 288, testHistory)

	tests := []struct {
		name          string
		authorization string
		want          int
	}{
		{name: "missing header", authorization: "", want: http.StatusUnauthorized},
		{name: "wrong key", authorization: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong scheme", authorization: "Basic secret", want: http.StatusUnauthorized},
		{name: "prefix of key", authorization: "Bearer secre", want: http.StatusUnauthorized},
		{name: "valid", authorization: "Bearer secret", want: http.StatusOK},
		{name: "lowercase scheme", authorization: "bearer secret", want: http.StatusOK},
		{name: "surrounding space", authorization: "Bearer  secret ", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/api/system", "/api/history", "/api/snapshots"} {
				rec := doRequest(s, path, tt.authorization)
				assert.Equal(t, tt.want, rec.Code, path)
			}
		})
	}
}

func TestEmptyKeyAllowsRequests(t *testing.T) {
	s := newTestServer(t, "", 288, testHistory)

	rec := doRequest(s, "/api/system", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, "/api/history", "Bearer anything")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthSkipsAuth(t *testing.T) {
	s := newTestServer(t, "secret", 288, "")

	rec := doRequest(s, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestLatestSnapshot(t *testing.T) {
	s := newTestServer(t, "", 288, testHistory)

	rec := doRequest(s, "/api/system", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "t4", snap.Timestamp.String())
	assert.Equal(t, 40.0, snap.CPUUsagePct)
}

func TestLatestSnapshotWithoutHistory(t *testing.T) {
	for name, content := range map[string]string{
		"missing file": "",
		"empty list":   `{"snapshots": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t, "", 288, content)
			rec := doRequest(s, "/api/system", "")
			assert.Equal(t, http.StatusNotFound, rec.Code)
		})
	}
}

func TestHistoryLimit(t *testing.T) {
	tests := []struct {
		name         string
		historyLimit int
		query        string
		want         []string
	}{
		{name: "default is history limit", historyLimit: 2, query: "", want: []string{"t4", "t3"}},
		{name: "smaller limit", historyLimit: 288, query: "?limit=3", want: []string{"t4", "t3", "t2"}},
		{name: "capped by history limit", historyLimit: 2, query: "?limit=100", want: []string{"t4", "t3"}},
		{name: "zero", historyLimit: 288, query: "?limit=0", want: []string{}},
		{name: "unlimited store", historyLimit: 0, query: "", want: []string{"t4", "t3", "t2", "t1"}},
		{name: "unlimited store with limit", historyLimit: 0, query: "?limit=1", want: []string{"t4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, "", tt.historyLimit, testHistory)
			rec := doRequest(s, "/api/history"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, decodeSnapshots(t, rec))
		})
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	s := newTestServer(t, "", 288, testHistory)

	for _, query := range []string{"?limit=abc", "?limit=-1", "?limit=1.5"} {
		rec := doRequest(s, "/api/history"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestHistoryCorruptFile(t *testing.T) {
	s := newTestServer(t, "", 288, `{"snapshots": [`)

	rec := doRequest(s, "/api/history", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "snapshots")
}

func TestSnapshotFile(t *testing.T) {
	s := newTestServer(t, "", 288, testHistory)

	rec := doRequest(s, "/api/snapshots", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var history metrics.History
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history.Snapshots, 4)
	assert.Equal(t, "t1", history.Snapshots[0].Timestamp.String())
}

func TestPlaceholderEndpoints(t *testing.T) {
	s := newTestServer(t, "", 288, "")

	for _, name := range []string{"apps", "tasks", "webtest", "alerts"} {
		rec := doRequest(s, "/api/"+name, "")
		require.Equal(t, http.StatusOK, rec.Code, name)
		assert.JSONEq(t, fmt.Sprintf(`{%q: []}`, name), rec.Body.String())
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t, "secret", 288, testHistory)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Serve(ctx, ln)
	}()

	req, err := http.NewRequest(http.MethodGet, "http://"+ln.Addr().String()+"/api/history?limit=1", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
