package siesta

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiestaListenerAcceptsPlainConnections(t *testing.T) {
	ln, err := newSiestaListener("127.0.0.1:0", Config{})
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err == nil {
			conn.Write([]byte("hi"))
			conn.Close()
		}
	}()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 2)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := readFullFromConn(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))
}

func TestProxyConnParsesV1Header(t *testing.T) {
	ln, err := newSiestaListener("127.0.0.1:0", Config{ProxyEnabled: true})
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := net.Dial("tcp", ln.Addr().String())
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("PROXY TCP4 10.0.0.1 10.0.0.2 1111 2222\r\npayload"))
	}()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 7)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := readFullFromConn(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(buf[:n]))
	assert.Equal(t, "10.0.0.1:1111", conn.RemoteAddr().String())
}

func readFullFromConn(r net.Conn, buf []byte) (int, error) {
	br := bufio.NewReader(r)
	n := 0
	for n < len(buf) {
		m, err := br.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
