package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcastsToSubscribers(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	hub.Broadcast(map[string]string{"symbol": "EURUSD", "direction": "BUY"})

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var got map[string]string
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, "BUY", got["direction"])
	}
}

func TestHubForgetsClosedClients(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubSkipsUnencodableValues(t *testing.T) {
	hub := NewHub(nil)
	assert.NotPanics(t, func() { hub.Broadcast(make(chan int)) })
}
