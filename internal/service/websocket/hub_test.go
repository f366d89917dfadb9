package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dualdetect/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T, buffer int) *HubService {
	t.Helper()
	l, err := logger.New(t.TempDir())
	require.NoError(t, err)
	return NewHubService(buffer, l)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := newTestHub(t, 2)

	// Run is not started, so nothing drains the queue.
	assert.True(t, hub.Broadcast([]byte("a")))
	assert.True(t, hub.Broadcast([]byte("b")))

	done := make(chan bool)
	go func() { done <- hub.Broadcast([]byte("c")) }()
	select {
	case queued := <-done:
		assert.False(t, queued)
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full queue")
	}
	assert.Equal(t, uint64(1), hub.Dropped())
}

func TestHub_DeliversToClients(t *testing.T) {
	hub := newTestHub(t, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.True(t, hub.Broadcast([]byte(`{"lane":"animal"}`)))
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"lane":"animal"}`, string(msg))

	cancel()
	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RegisterAfterStopIsNoop(t *testing.T) {
	hub := newTestHub(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	done := make(chan struct{})
	go func() {
		hub.Unregister(nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Unregister blocked after hub stopped")
	}
}
