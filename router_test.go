package siesta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseURIOf(t *testing.T) {
	assert.Equal(t, "/api", baseURIOf("/api/:name"))
	assert.Equal(t, "/files", baseURIOf("/files/:name.ext"))
	assert.Equal(t, "/literal/path", baseURIOf("/literal/path/"))
	assert.Equal(t, "/", baseURIOf("/"))
	assert.Equal(t, "/", baseURIOf("/:name"))
}

func TestCompileRoutePatternCapturesNames(t *testing.T) {
	pattern, names, err := compileRoutePattern("/my/:test/:path")
	assert.NoError(t, err)
	assert.Equal(t, []string{"test", "path"}, names)
	assert.True(t, pattern.MatchString("/my/23/42"))
	assert.False(t, pattern.MatchString("/my/23"))
}

func TestCompileRoutePatternRejectsDuplicateNames(t *testing.T) {
	_, _, err := compileRoutePattern("/my/:name/:name")
	assert.Error(t, err)
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestRouteTableAddAndRemove(t *testing.T) {
	rt := newRouteTable()

	base, id, err := rt.add("GET", "/api/:name", nil)
	assert.NoError(t, err)
	assert.Equal(t, "/api", base)
	assert.Equal(t, 1, id)

	_, _, found := rt.lookup("GET", "/api/foo")
	assert.True(t, found)

	rt.remove("GET", base, id)
	_, _, found = rt.lookup("GET", "/api/foo")
	assert.False(t, found)

	assert.Empty(t, rt.methods)
}

// TestRouteTableFullMatchSelectsRoute exercises spec §8 property 3: with
// /api/:name and /api/:name/:index registered (both under base URI /api),
// /api/x dispatches the first and /api/x/5 the second.
func TestRouteTableFullMatchSelectsRoute(t *testing.T) {
	rt := newRouteTable()

	var calledOne, calledTwo bool
	_, _, err := rt.add("GET", "/api/:name", func(*Request, *Response) error {
		calledOne = true
		return nil
	})
	assert.NoError(t, err)

	_, _, err = rt.add("GET", "/api/:name/:index", func(*Request, *Response) error {
		calledTwo = true
		return nil
	})
	assert.NoError(t, err)

	r, params, found := rt.lookup("GET", "/api/x")
	assert.True(t, found)
	r.handler(nil, nil)
	assert.True(t, calledOne)
	assert.Equal(t, []string{"x"}, params)

	r, params, found = rt.lookup("GET", "/api/x/5")
	assert.True(t, found)
	r.handler(nil, nil)
	assert.True(t, calledTwo)
	assert.Equal(t, []string{"x", "5"}, params)
}

func TestRouteTableLookupMissOnUnknownMethod(t *testing.T) {
	rt := newRouteTable()
	_, _, found := rt.lookup("GET", "/anything")
	assert.False(t, found)
}

func TestRouteTableAscendingIDWinsFirstFullMatch(t *testing.T) {
	rt := newRouteTable()

	_, id1, err := rt.add("GET", "/x/:a", func(*Request, *Response) error { return nil })
	assert.NoError(t, err)
	base, id2, err := rt.add("GET", "/x/:a", func(*Request, *Response) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, 1, id1)
	assert.Equal(t, 2, id2)

	r, _, found := rt.lookup("GET", "/x/foo")
	assert.True(t, found)
	assert.Equal(t, id1, r.id)

	rt.remove("GET", base, id1)
	r, _, found = rt.lookup("GET", "/x/foo")
	assert.True(t, found)
	assert.Equal(t, id2, r.id)
}
