package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youwol/ywdash/config"
	"github.com/youwol/ywdash/errors"
	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/optree"
	"github.com/youwol/ywdash/state/environment"
	"github.com/youwol/ywdash/testutil"
	"github.com/youwol/ywdash/transport"
)

// fakeDaemon serves the admin API and both websocket channels.
func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	respond := func(path string, v any) {
		mux.HandleFunc(path, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(v)
		})
	}
	respond(transport.PathProjectsStatus, message.ProjectsLoadingResults{Results: []message.Project{{ID: "p1", Name: "flux"}}})
	respond(transport.PathCdnStatus, message.CdnStatusResponse{Packages: []message.CdnPackage{{Name: "rxjs", ID: message.PackageID("rxjs")}}})
	respond(transport.PathEnvironmentStatus, message.EnvironmentStatusResponse{Users: []string{"alice"}})
	respond(transport.PathSystemLogs, environment.LogsResponse{Logs: []message.Message{
		{ContextID: "boot", Level: message.LevelInfo, Text: "daemon started"},
	}})
	respond(transport.PathCdnCollectUpdates, map[string]any{})

	ws := func(frames ...string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			for _, f := range frames {
				_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
			}
			_, _, _ = conn.ReadMessage()
		}
	}
	mux.HandleFunc("/"+transport.ChannelLogs, ws(
		`{"contextId":"op","level":"INFO","labels":["STARTED"],"text":"install"}`,
		`{"contextId":"op","level":"INFO","labels":["DONE"]}`,
	))
	mux.HandleFunc("/"+transport.ChannelData, ws(
		`{"contextId":"env","level":"DATA","labels":["EnvironmentStatusResponse"],"data":{"configuration":{},"users":["bob"]}}`,
	))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(daemonURL string) *config.Config {
	cfg := config.Default()
	cfg.Daemon.URL = daemonURL
	cfg.Reconnect.InitialDelay = 5 * time.Millisecond
	cfg.Reconnect.MaxDelay = 20 * time.Millisecond
	cfg.Gateway.Listen = "127.0.0.1:0"
	cfg.Relay.Enabled = true
	return cfg
}

func TestApp_Run(t *testing.T) {
	srv := fakeDaemon(t)
	pub := testutil.NewMockPublisher()

	a, err := New(testConfig(srv.URL), WithRelayPublisher(pub))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		n, ok := a.Environment.Tree.Node("op")
		return ok && n.Status().Get() == optree.StatusSuccess
	}, 5*time.Second, 10*time.Millisecond)

	_, ok := a.Environment.Tree.Node("boot")
	assert.True(t, ok, "log backlog is routed")

	require.Eventually(t, func() bool {
		return len(a.Environment.Status.Get().Users) == 1 && a.Environment.Status.Get().Users[0] == "bob"
	}, 5*time.Second, 10*time.Millisecond, "live data messages replace the snapshot")

	_, ok = a.Projects.Project("p1")
	assert.True(t, ok)
	assert.Len(t, a.Cdn.Packages.Get(), 1)

	testutil.WaitForCount(t, pub, "ywdash.operations.done", 1, 5*time.Second)

	require.NoError(t, a.Cdn.CheckUpdates())
	require.Eventually(t, func() bool {
		v := promtest.ToFloat64(a.Metrics.CoreMetrics().ActionsTotal.WithLabelValues("check-updates", "ok"))
		return v == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return a.Health.Report("ywdash").IsHealthy()
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + a.Gateway.Addr() + "/api/projects")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	require.NoError(t, a.Close(time.Second))
	require.NoError(t, a.Close(time.Second))
}

func TestApp_DaemonDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Gateway.Enabled = false
	cfg.Relay.Enabled = false
	a, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, func() bool {
		return a.Health.Report("ywdash").IsDegraded()
	}, 5*time.Second, 10*time.Millisecond, "feed is reconnecting")

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, a.Close(time.Second))
}

func TestApp_RunTwice(t *testing.T) {
	srv := fakeDaemon(t)
	cfg := testConfig(srv.URL)
	cfg.Gateway.Enabled = false
	cfg.Relay.Enabled = false
	a, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, a.Close(time.Second))

	err = a.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	cfg := config.Default()
	cfg.Inbox.Capacity = 0
	_, err = New(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}
