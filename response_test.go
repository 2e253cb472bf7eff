package siesta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseDefaults(t *testing.T) {
	res := newResponse()
	assert.Equal(t, StatusOK, res.Status())
	assert.Empty(t, res.body)
}

func TestResponseSetStatusWithAndWithoutReason(t *testing.T) {
	res := newResponse()

	res.SetStatus(StatusConflict)
	assert.Equal(t, StatusConflict, res.Status())
	assert.Equal(t, "", res.reason)

	res.SetStatus(StatusConflict, "foo")
	assert.Equal(t, "foo", res.reason)
}

func TestResponseHeadersPreserveInsertionOrderAndDuplicates(t *testing.T) {
	res := newResponse()
	res.AddHeader("X-A", "1")
	res.AddHeader("X-B", "2")
	res.AddHeader("X-A", "3")

	got := res.Headers()
	assert.Equal(t, []struct{ Key, Value string }{
		{"X-A", "1"},
		{"X-B", "2"},
		{"X-A", "3"},
	}, got)
}

func TestResponseSetBodyCopies(t *testing.T) {
	res := newResponse()
	data := []byte("hello")
	res.SetBody(data)
	data[0] = 'H'
	assert.Equal(t, "hello", string(res.body))
}
