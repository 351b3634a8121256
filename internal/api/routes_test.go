package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trakn-sync-service/internal/config"
	"trakn-sync-service/internal/database"
	"trakn-sync-service/internal/mirror"
	"trakn-sync-service/internal/queue"
	"trakn-sync-service/internal/records"
	"trakn-sync-service/internal/remote"
	"trakn-sync-service/internal/store"
	"trakn-sync-service/internal/sync"
)

type nopRemote struct{}

func (nopRemote) Insert(ctx context.Context, table string, record queue.Record) error    { return nil }
func (nopRemote) Update(ctx context.Context, table, id string, record queue.Record) error { return nil }
func (nopRemote) Delete(ctx context.Context, table, id string) error                      { return nil }

type testServer struct {
	srv         *httptest.Server
	handler     *Handler
	coordinator *sync.Coordinator
}

func newTestServer(t *testing.T, cfg config.ServerConfig) *testServer {
	t.Helper()

	db, err := database.NewLocalDatabase(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)

	history := store.NewSQLiteStore(db.DB)
	opts := sync.DefaultOptions()
	opts.Validate = remote.NewMySQLStore(nil, []config.TableConfig{{Name: "workouts"}}).Validate
	coordinator := sync.NewCoordinator(queue.NewSQLiteQueue(db.DB), nopRemote{}, history, opts)
	svc := records.NewService(nopRemote{}, mirror.New(db.DB), coordinator, []string{"workouts"}, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- coordinator.Run(ctx) }()

	handler := NewHandler(cfg, coordinator, svc, history)
	srv := httptest.NewServer(handler.Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
		_ = db.Close()
	})

	return &testServer{srv: srv, handler: handler, coordinator: coordinator}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})
	resp := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestForceSync_OfflineConflict(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})

	resp := ts.do(t, http.MethodPost, "/api/v1/sync/force", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, sync.ErrOffline.Error(), body["error"])
}

func TestQueueAndSync(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})

	resp := ts.do(t, http.MethodPost, "/api/v1/sync/operations", map[string]interface{}{
		"type":  "create",
		"table": "workouts",
		"data":  map[string]interface{}{"id": "w1", "name": "Leg Day"},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var op queue.Operation
	decode(t, resp, &op)
	assert.NotEmpty(t, op.ID)
	assert.Equal(t, queue.Create, op.Type)

	resp = ts.do(t, http.MethodGet, "/api/v1/sync/queue", nil)
	var ops []queue.Operation
	decode(t, resp, &ops)
	require.Len(t, ops, 1)

	resp = ts.do(t, http.MethodPut, "/api/v1/sync/online", map[string]bool{"online": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		return ts.coordinator.Status().Synced == 1 && ts.coordinator.Status().Pending == 0
	}, time.Second, 5*time.Millisecond)

	resp = ts.do(t, http.MethodPost, "/api/v1/sync/force", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap sync.Snapshot
	decode(t, resp, &snap)
	assert.True(t, snap.Online)
	assert.Equal(t, 0, snap.Status.Pending)

	resp = ts.do(t, http.MethodGet, "/api/v1/sync/history", nil)
	var history []map[string]interface{}
	decode(t, resp, &history)
	require.Len(t, history, 1)
	assert.Equal(t, float64(1), history[0]["synced"])
}

func TestQueueOperation_BadRequest(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})

	resp := ts.do(t, http.MethodPost, "/api/v1/sync/operations", map[string]interface{}{
		"type":  "create",
		"table": "workouts",
		"data":  map[string]interface{}{"name": "no id"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodPut, "/api/v1/sync/online", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClearQueue(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})

	ts.do(t, http.MethodPost, "/api/v1/sync/operations", map[string]interface{}{
		"type": "delete", "table": "workouts", "data": map[string]interface{}{"id": "w1"},
	})
	resp := ts.do(t, http.MethodDelete, "/api/v1/sync/queue", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, ts.coordinator.Status().Pending)
}

func TestRecords_OfflineWriteIsQueuedAndReadable(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})

	resp := ts.do(t, http.MethodPost, "/api/v1/records/workouts", map[string]interface{}{"name": "Leg Day"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var res records.Result
	decode(t, resp, &res)
	assert.True(t, res.Queued)
	id := res.Record.ID()
	require.NotEmpty(t, id)

	resp = ts.do(t, http.MethodGet, "/api/v1/records/workouts/"+id, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rec queue.Record
	decode(t, resp, &rec)
	assert.Equal(t, "Leg Day", rec["name"])

	assert.Equal(t, 1, ts.coordinator.Status().Pending)

	resp = ts.do(t, http.MethodGet, "/api/v1/records/workouts/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/records/users", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{AuthToken: "secret"})

	resp := ts.do(t, http.MethodGet, "/api/v1/sync/status", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/sync/status", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	resp = ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStreamSyncStatus(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.srv.URL+"/api/v1/sync/status/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: status\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var snap sync.Snapshot
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap))
	assert.False(t, snap.Online)
}

func TestServerShutdown_EndsStatusStreams(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := ts.handler.Server(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/sync/status/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: status\n", line)

	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
	defer stop()
	require.NoError(t, srv.Shutdown(shutdownCtx))
	assert.ErrorIs(t, <-served, http.ErrServerClosed)
}

func TestQueueOperation_UnknownTable(t *testing.T) {
	ts := newTestServer(t, config.ServerConfig{})

	resp := ts.do(t, http.MethodPost, "/api/v1/sync/operations", map[string]interface{}{
		"type":  "create",
		"table": "no_such_table",
		"data":  map[string]interface{}{"id": "w1"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var ops []queue.Operation
	decode(t, ts.do(t, http.MethodGet, "/api/v1/sync/queue", nil), &ops)
	assert.Empty(t, ops)
}
