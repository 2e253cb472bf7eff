package client

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectEchoesMessage(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	}))
	defer srv.Close()

	uri := "ws" + strings.TrimPrefix(srv.URL, "http")

	var mu sync.Mutex
	var received string
	done := make(chan struct{})

	w, err := Connect(uri, func(w *Writer, data []byte) {
		mu.Lock()
		received = string(data)
		mu.Unlock()
		close(done)
	}, ConnectOptions{TextMode: true})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Send([]byte("ping")))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echo")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "ping", received)
}
