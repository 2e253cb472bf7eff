package siesta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenCloseRunsTeardownOnce(t *testing.T) {
	count := 0
	tok := newToken(func() { count++ })

	assert.NoError(t, tok.Close())
	assert.NoError(t, tok.Close())
	assert.Equal(t, 1, count)
}

func TestTokenCloseNilTeardownIsNoop(t *testing.T) {
	tok := newToken(nil)
	assert.NoError(t, tok.Close())
}

func TestTokenHolderClearsInReverseOrder(t *testing.T) {
	var order []int

	var h TokenHolder
	h.Add(newToken(func() { order = append(order, 1) }))
	h.Add(newToken(func() { order = append(order, 2) }))
	h.Add(newToken(func() { order = append(order, 3) }))

	h.Clear()
	assert.Equal(t, []int{3, 2, 1}, order)
	assert.Empty(t, h.tokens)
}
