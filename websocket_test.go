package siesta

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWSTestServer(t *testing.T) (*Server, int) {
	t.Helper()
	s, err := NewServer("http://127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Close() })

	port, err := s.Port()
	require.NoError(t, err)
	return s, port
}

// TestS5WebSocketEcho is scenario S5 from spec §8.
func TestS5WebSocketEcho(t *testing.T) {
	s, port := startWSTestServer(t)

	tok, err := s.AddTextWebSocket("/socket", func(w *WSWriter) *WSHandler {
		return &WSHandler{OnMessage: func(data []byte) { w.Send(data) }}
	}, 0)
	require.NoError(t, err)
	defer tok.Close()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%d/socket", port), nil)
	require.NoError(t, err)
	defer conn.Close()

	const msg = "{33F949DE-ED30-450C-B903-670EFF210D08}"
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

	conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, msg, string(data))
}

// TestS6WebSocketCapacity is scenario S6.
func TestS6WebSocketCapacity(t *testing.T) {
	s, port := startWSTestServer(t)

	tok, err := s.AddTextWebSocket("/socket", func(w *WSWriter) *WSHandler {
		return &WSHandler{}
	}, 2)
	require.NoError(t, err)
	defer tok.Close()

	addr := fmt.Sprintf("ws://127.0.0.1:%d/socket", port)

	c1, _, err := websocket.DefaultDialer.Dial(addr, nil)
	require.NoError(t, err)
	defer c1.Close()

	c2, _, err := websocket.DefaultDialer.Dial(addr, nil)
	require.NoError(t, err)
	defer c2.Close()

	_, resp, err := websocket.DefaultDialer.Dial(addr, nil)
	assert.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	}

	require.NoError(t, c1.Close())
	time.Sleep(50 * time.Millisecond)

	c3, _, err := websocket.DefaultDialer.Dial(addr, nil)
	require.NoError(t, err)
	defer c3.Close()
}
