package siesta

import "sync"

// Token is a registration handle returned by a Server's Add* methods
// (spec §3 "Token", §4.6 C6). Dropping a Token — calling Close — removes
// exactly the route, directory mount, or WebSocket endpoint it was issued
// for. Close is idempotent and safe to call even after the owning Server
// has been torn down, in which case it is a no-op (spec §9, "Cyclic
// ownership").
type Token struct {
	once     sync.Once
	teardown func()
}

// newToken returns a Token whose Close runs teardown exactly once.
func newToken(teardown func()) *Token {
	return &Token{teardown: teardown}
}

// Close deregisters whatever this Token was issued for. It is safe to call
// multiple times or concurrently; only the first call has any effect.
func (t *Token) Close() error {
	t.once.Do(func() {
		if t.teardown != nil {
			t.teardown()
		}
	})
	return nil
}

// TokenHolder aggregates a batch of Tokens so a host program can tear down
// a whole group of routes/mounts/endpoints with a single call (spec §4.6).
// It is not safe for concurrent use.
type TokenHolder struct {
	tokens []*Token
}

// Add appends a token to the holder.
func (h *TokenHolder) Add(t *Token) {
	h.tokens = append(h.tokens, t)
}

// Clear closes every held token in reverse-insertion order, then empties
// the holder.
func (h *TokenHolder) Clear() {
	for i := len(h.tokens) - 1; i >= 0; i-- {
		h.tokens[i].Close()
	}
	h.tokens = nil
}
