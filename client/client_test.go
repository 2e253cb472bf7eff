package client

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	body, err := Get(srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestNonOKStatusRaisesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(reasonHeader, "nope")
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	_, err := Get(srv.URL)
	require.Error(t, err)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusConflict, se.Status)
	assert.Equal(t, "nope", se.Reason)
}

func TestMissingContentLengthRaisesProtocolError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Transfer-Encoding", "chunked")
		flusher, ok := w.(http.Flusher)
		w.Write([]byte("partial"))
		if ok {
			flusher.Flush()
		}
	}))
	defer srv.Close()

	_, err := Get(srv.URL)
	require.Error(t, err)

	var pe *ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestWithTimeoutIsRespected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte("late"))
	}))
	defer srv.Close()

	_, err := Get(srv.URL, WithTimeout(time.Millisecond))
	assert.Error(t, err)
}
