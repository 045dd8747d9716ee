package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/youwol/ywdash/message"
	"github.com/youwol/ywdash/metric"
	"github.com/youwol/ywdash/pkg/buffer"
	"github.com/youwol/ywdash/pkg/retry"
)

var upgrader = websocket.Upgrader{}

func fastReconnect() retry.Config {
	return retry.Config{InitialDelay: 5 * time.Millisecond, MaxDelay: 20 * time.Millisecond, Multiplier: 2}
}

func readN(t *testing.T, inbox *buffer.Inbox[message.Message], n int) []message.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out := make([]message.Message, 0, n)
	for len(out) < n {
		m, err := inbox.Read(ctx)
		require.NoError(t, err)
		out = append(out, m)
	}
	return out
}

func TestFeed_MergesChannels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		switch r.URL.Path {
		case "/" + ChannelLogs:
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"contextId":"A","text":"log"}`))
		case "/" + ChannelData:
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"contextId":"B","level":"DATA"}`))
		}
		// hold the connection until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	inbox, err := buffer.NewInbox[message.Message](16)
	require.NoError(t, err)
	registry := metric.NewMetricsRegistry()
	feed, err := NewFeed(FeedConfig{BaseURL: srv.URL, Reconnect: fastReconnect()}, inbox,
		WithFeedMetrics(registry.CoreMetrics()))
	require.NoError(t, err)

	require.NoError(t, feed.Start(context.Background()))
	msgs := readN(t, inbox, 2)

	got := map[string]bool{}
	for _, m := range msgs {
		got[m.ContextID] = true
	}
	assert.Equal(t, map[string]bool{"A": true, "B": true}, got)

	require.Eventually(t, feed.Connected, 2*time.Second, 5*time.Millisecond)
	stats := feed.Stats()
	assert.Equal(t, int64(2), stats.Received)
	assert.Equal(t, int64(1), stats.DecodeErrors)
	assert.Equal(t, 1.0, testutil.ToFloat64(registry.CoreMetrics().MessagesReceived.WithLabelValues(ChannelData)))

	require.NoError(t, feed.Stop(2*time.Second))
	assert.Equal(t, 0, feed.Stats().Connected)
}

func TestFeed_Reconnects(t *testing.T) {
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := connections.Add(1)
		if n == 1 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"contextId":"first"}`))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"contextId":"second"}`))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	inbox, err := buffer.NewInbox[message.Message](16)
	require.NoError(t, err)
	feed, err := NewFeed(FeedConfig{
		BaseURL:   srv.URL,
		Channels:  []string{ChannelLogs},
		Reconnect: fastReconnect(),
	}, inbox)
	require.NoError(t, err)

	require.NoError(t, feed.Start(context.Background()))
	defer func() { _ = feed.Stop(2 * time.Second) }()

	msgs := readN(t, inbox, 2)
	assert.Equal(t, "first", msgs[0].ContextID)
	assert.Equal(t, "second", msgs[1].ContextID)
	assert.GreaterOrEqual(t, feed.Stats().Reconnects, int64(1))
}

func TestFeed_StartTwice(t *testing.T) {
	inbox, err := buffer.NewInbox[message.Message](1)
	require.NoError(t, err)
	feed, err := NewFeed(FeedConfig{BaseURL: "http://127.0.0.1:1", Reconnect: fastReconnect()}, inbox)
	require.NoError(t, err)

	require.NoError(t, feed.Start(context.Background()))
	assert.Error(t, feed.Start(context.Background()))
	require.NoError(t, feed.Stop(2*time.Second))
	require.NoError(t, feed.Stop(time.Second))
}

func TestNewFeed_Validation(t *testing.T) {
	inbox, err := buffer.NewInbox[message.Message](1)
	require.NoError(t, err)

	_, err = NewFeed(FeedConfig{}, inbox)
	assert.Error(t, err)
	_, err = NewFeed(FeedConfig{BaseURL: "http://x"}, nil)
	assert.Error(t, err)
}
