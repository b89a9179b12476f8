package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realestate/server/internal/subdivision"
)

func startHub(t *testing.T, origins []string) (*EventHub, *httptest.Server) {
	t.Helper()
	hub := NewEventHub(origins, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEventHubBroadcastsEvents(t *testing.T) {
	hub, server := startHub(t, nil)

	first := dial(t, server, nil)
	second := dial(t, server, nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(subdivision.Event{
		Type:          subdivision.EventLotsCreated,
		SubdivisionID: "sunset",
		LotIDs:        []string{"A-sunset"},
		At:            time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, message, err := conn.ReadMessage()
		require.NoError(t, err)

		var event subdivision.Event
		require.NoError(t, json.Unmarshal(message, &event))
		assert.Equal(t, subdivision.EventLotsCreated, event.Type)
		assert.Equal(t, "sunset", event.SubdivisionID)
		assert.Equal(t, []string{"A-sunset"}, event.LotIDs)
	}
}

func TestEventHubUnregistersClosedClients(t *testing.T) {
	hub, server := startHub(t, nil)

	conn := dial(t, server, nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventHubRejectsUnknownOrigin(t *testing.T) {
	_, server := startHub(t, []string{"http://localhost:5173"})
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"http://localhost:5173"}}
	dial(t, server, header)
}

func TestEventHubPublishDoesNotBlockWithoutRun(t *testing.T) {
	hub := NewEventHub(nil, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(subdivision.Event{Type: subdivision.EventSubdivisionCreated, SubdivisionID: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked with a full broadcast queue")
	}
}
