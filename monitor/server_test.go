package monitor

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ls4154/rangetest/workload"
)

func newTestServer(t *testing.T) (*Metrics, *Hub, *httptest.Server) {
	t.Helper()
	m := NewMetrics("run-1", "memory")
	hub := NewHub(zaptest.NewLogger(t))
	m.AttachHub(hub)
	srv := NewServer(m, hub, zaptest.NewLogger(t))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return m, hub, ts
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetricsEndpoint(t *testing.T) {
	m, _, ts := newTestServer(t)
	m.PhaseChanged(workload.PhaseLoad)
	m.Wrote(100)
	m.Wrote(50)
	m.Flushed(0)
	m.Sampled(workload.Sample{Found: 7, Missed: 3, QPS: 10})

	body := get(t, ts.URL+"/metrics")
	require.Contains(t, body, `rangetest_writes_total{engine="memory",run_id="run-1"} 2`)
	require.Contains(t, body, `rangetest_write_bytes_total{engine="memory",run_id="run-1"} 150`)
	require.Contains(t, body, `rangetest_flushes_total{engine="memory",run_id="run-1"} 1`)
	require.Contains(t, body, `rangetest_get_found_total{engine="memory",run_id="run-1"} 7`)
	require.Contains(t, body, `rangetest_get_qps{engine="memory",run_id="run-1"} 10`)
	require.Contains(t, body, `rangetest_phase{engine="memory",run_id="run-1"} 1`)
}

func TestStatusEndpoint(t *testing.T) {
	m, _, ts := newTestServer(t)
	m.PhaseChanged(workload.PhaseCompact)
	m.Wrote(10)
	m.Compacted(workload.CompactResult{
		Policy:  workload.RangeUser,
		Begin:   []byte("0"),
		End:     []byte("1000"),
		Elapsed: 2 * time.Second,
	})

	var st Status
	require.NoError(t, json.Unmarshal([]byte(get(t, ts.URL+"/status")), &st))
	require.Equal(t, "run-1", st.RunID)
	require.Equal(t, "memory", st.Engine)
	require.Equal(t, "compact", st.Phase)
	require.Equal(t, int64(1), st.Writes)
	require.NotNil(t, st.Compaction)
	require.Equal(t, "user", st.Compaction.Policy)
	require.Equal(t, "1000", st.Compaction.End)
	require.Equal(t, 2.0, st.Compaction.Seconds)
}

func TestWebSocketEvents(t *testing.T) {
	m, hub, ts := newTestServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "status", ev.Type)
	require.Equal(t, "init", ev.Status.Phase)

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 5*time.Second, 5*time.Millisecond)

	m.Sampled(workload.Sample{Found: 4, Missed: 1, QPS: 5, P99: 200 * time.Microsecond})
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, "sample", ev.Type)
	require.NotNil(t, ev.Status.LastSample)
	require.Equal(t, uint64(4), ev.Status.LastSample.Found)
	require.Equal(t, int64(200), ev.Status.LastSample.P99Micro)
	require.Equal(t, uint64(1), ev.Status.Totals.Missed)

	hub.Close()
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
}

func TestServerStartShutdown(t *testing.T) {
	m := NewMetrics("run-2", "pebble")
	hub := NewHub(nil)
	srv := NewServer(m, hub, nil)
	require.Equal(t, "", srv.Addr())
	require.NoError(t, srv.Start("127.0.0.1:0"))

	body := get(t, "http://"+srv.Addr()+"/status")
	require.Contains(t, body, `"run_id":"run-2"`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}
