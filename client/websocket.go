package client

import (
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Writer is returned by Connect; Send blocks until the frame is flushed
// (spec §6, "a writer whose send(bytes) blocks until flushed").
type Writer struct {
	mu       sync.Mutex
	conn     *websocket.Conn
	textMode bool
}

// Send writes data as a single frame in the mode Connect was called with.
func (w *Writer) Send(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	msgType := websocket.BinaryMessage
	if w.textMode {
		msgType = websocket.TextMessage
	}
	return w.conn.WriteMessage(msgType, data)
}

// Close closes the underlying connection without waiting for a close
// handshake.
func (w *Writer) Close() error {
	return w.conn.Close()
}

// ConnectOptions groups the optional callbacks Connect accepts, mirroring
// the original client's optional on_open/on_error/on_close parameters.
type ConnectOptions struct {
	OnOpen   func(w *Writer)
	OnError  func(w *Writer, err error)
	OnClose  func(w *Writer)
	TextMode bool // Send writes text frames when true; the zero value sends binary frames
}

// Connect dials uri (a ws:// or wss:// address) and starts a background
// read loop that delivers each received frame to onMessage. It returns a
// Writer for sending frames back, or an error if the handshake fails.
func Connect(uri string, onMessage func(w *Writer, data []byte), opts ConnectOptions) (*Writer, error) {
	dialURI := uri
	if !strings.HasPrefix(dialURI, "ws://") && !strings.HasPrefix(dialURI, "wss://") {
		dialURI = strings.Replace(dialURI, "http://", "ws://", 1)
		dialURI = strings.Replace(dialURI, "https://", "wss://", 1)
	}

	conn, _, err := websocket.DefaultDialer.Dial(dialURI, nil)
	if err != nil {
		return nil, err
	}

	w := &Writer{conn: conn, textMode: opts.TextMode}

	if opts.OnOpen != nil {
		opts.OnOpen(w)
	}

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if opts.OnError != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					opts.OnError(w, err)
				}
				if opts.OnClose != nil {
					opts.OnClose(w)
				}
				return
			}
			if onMessage != nil {
				onMessage(w, data)
			}
		}
	}()

	return w, nil
}
