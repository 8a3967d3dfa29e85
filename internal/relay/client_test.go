package relay

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukydev/fleet-commute/internal/notify"
)

func dialRelay(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestWebsocketClient_JoinRelayAndDisconnect(t *testing.T) {
	r := New(time.Hour, time.Hour)
	server := httptest.NewServer(Handler(r, "http://localhost:5173"))
	defer server.Close()

	driver := dialRelay(t, server, nil)
	dashboard := dialRelay(t, server, http.Header{"Origin": []string{"http://localhost:5173"}})
	require.Eventually(t, func() bool { return r.ObserverCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, driver.WriteJSON(map[string]interface{}{"event": EventDriverJoin, "data": "d1"}))
	require.Eventually(t, func() bool { return len(r.Drivers()) == 1 }, 2*time.Second, 10*time.Millisecond)

	update := map[string]interface{}{
		"event": notify.EventDriverLocationUpdate,
		"data":  map[string]interface{}{"driverId": "d1", "lat": 12.97, "lng": 77.59},
	}
	require.NoError(t, driver.WriteJSON(update))

	for _, conn := range []*websocket.Conn{driver, dashboard} {
		msg := readMessage(t, conn)
		assert.Equal(t, notify.EventDriverLocationUpdate, msg.Event)
		assert.JSONEq(t, `{"driverId":"d1","lat":12.97,"lng":77.59}`, string(msg.Data))
	}

	require.NoError(t, driver.Close())
	require.Eventually(t, func() bool { return len(r.Drivers()) == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, r.ObserverCount())
}

func TestWebsocketClient_ReceivesPrompts(t *testing.T) {
	r := New(time.Hour, time.Hour)
	server := httptest.NewServer(Handler(r))
	defer server.Close()

	conn := dialRelay(t, server, nil)
	require.Eventually(t, func() bool { return r.ObserverCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	r.promptLocation()
	assert.Equal(t, EventRequestLocationUpdate, readMessage(t, conn).Event)
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	r := New(time.Hour, time.Hour)
	server := httptest.NewServer(Handler(r, "http://localhost:5173"))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": []string{"http://evil.example"}})
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, r.ObserverCount())
}

func TestClient_SendAfterClose(t *testing.T) {
	c := &Client{id: "c", send: make(chan Message, 1), done: make(chan struct{})}
	assert.True(t, c.Send(Message{Event: "a"}))
	assert.False(t, c.Send(Message{Event: "b"}), "buffer full")
	c.Close()
	c.Close()
	<-c.send
	assert.False(t, c.Send(Message{Event: "c"}))
}
