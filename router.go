package siesta

import (
	"regexp"
	"sort"
	"strings"
)

// Handler is user code invoked once per matched request (spec §3, §4.1).
type Handler func(*Request, *Response) error

// route is a single compiled registration: a pattern, its parameter names in
// registration order, and the handler to invoke on a full match.
type route struct {
	id         int
	pattern    *regexp.Regexp
	paramNames []string
	handler    Handler
}

// baseBucket holds every route registered under one (method, base URI) pair
// (spec §3, "Route Table"). routes is kept sorted ascending by id, which
// holds automatically because ids are only ever handed out in increasing
// order and removal never reorders the survivors.
type baseBucket struct {
	nextID int
	routes []*route
}

// routeTable is C1: the method/base-URI/pattern registry plus the lookup
// algorithm described in spec §4.1. It is not safe for concurrent use on its
// own; the owning Server serializes all access to it under its single lock.
type routeTable struct {
	methods map[string]map[string]*baseBucket
}

func newRouteTable() *routeTable {
	return &routeTable{methods: map[string]map[string]*baseBucket{}}
}

// paramPattern matches a ":name" path segment.
var paramPattern = regexp.MustCompile(`:([^/]+)`)

// baseURIOf truncates uri at the first ':' or '.' and strips a trailing '/'
// from what remains (spec §3, "Route" / GLOSSARY "Base URI").
func baseURIOf(uri string) string {
	cut := len(uri)
	for i := 0; i < len(uri); i++ {
		if uri[i] == ':' || uri[i] == '.' {
			cut = i
			break
		}
	}
	base := uri[:cut]
	if len(base) > 1 && strings.HasSuffix(base, "/") {
		base = base[:len(base)-1]
	}
	if base == "" {
		base = "/"
	}
	return base
}

// compileRoutePattern turns a registered URI into a regular expression that
// fully matches request paths, plus the ordered list of captured parameter
// names (spec §3, "Route"). It rejects a URI that uses the same parameter
// name twice (spec §9, "Parameter-name collision").
func compileRoutePattern(uri string) (*regexp.Regexp, []string, error) {
	var names []string

	reUI := paramPattern.ReplaceAllStringFunc(uri, func(m string) string {
		names = append(names, m[1:])
		return `([^/]+)`
	})

	for _, n := range names {
		if count(names, n) > 1 {
			return nil, nil, configErrorf(
				"AddRoute",
				"duplicate path parameter name %q in %q",
				n, uri,
			)
		}
	}

	pattern, err := regexp.Compile("^" + reUI + "$")
	if err != nil {
		return nil, nil, configErrorf("AddRoute", "invalid route pattern %q: %v", uri, err)
	}
	return pattern, names, nil
}

func count(ss []string, s string) int {
	n := 0
	for _, x := range ss {
		if x == s {
			n++
		}
	}
	return n
}

// add registers a new route for (method, uri) with handler h (spec §4.1,
// "Registration"). It returns the base URI and the id assigned to the new
// route, which together identify it for later removal.
func (rt *routeTable) add(method, uri string, h Handler) (base string, id int, err error) {
	pattern, names, err := compileRoutePattern(uri)
	if err != nil {
		return "", 0, err
	}

	base = baseURIOf(uri)

	byBase, ok := rt.methods[method]
	if !ok {
		byBase = map[string]*baseBucket{}
		rt.methods[method] = byBase
	}

	bucket, ok := byBase[base]
	if !ok {
		bucket = &baseBucket{}
		byBase[base] = bucket
	}

	bucket.nextID++
	id = bucket.nextID
	bucket.routes = append(bucket.routes, &route{
		id:         id,
		pattern:    pattern,
		paramNames: names,
		handler:    h,
	})

	return base, id, nil
}

// remove deregisters the route with the given id from (method, base). It
// tears down the base bucket once its last route is gone, and transitively
// the method map once its last base bucket is gone (spec §4.1).
func (rt *routeTable) remove(method, base string, id int) {
	byBase, ok := rt.methods[method]
	if !ok {
		return
	}
	bucket, ok := byBase[base]
	if !ok {
		return
	}

	for i, r := range bucket.routes {
		if r.id == id {
			bucket.routes = append(bucket.routes[:i], bucket.routes[i+1:]...)
			break
		}
	}

	if len(bucket.routes) == 0 {
		delete(byBase, base)
	}
	if len(byBase) == 0 {
		delete(rt.methods, method)
	}
}

// lookup finds the route matching method and path (query already stripped),
// following the algorithm in spec §4.1:
//  1. find the method map, miss if absent;
//  2. try base-URI buckets whose string is a substring of path, in
//     lexicographically descending order of the base URI;
//  3. within a bucket, try routes in ascending id order; the first pattern
//     that fully matches path wins.
func (rt *routeTable) lookup(method, path string) (*route, []string, bool) {
	byBase, ok := rt.methods[method]
	if !ok {
		return nil, nil, false
	}

	bases := make([]string, 0, len(byBase))
	for b := range byBase {
		bases = append(bases, b)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(bases)))

	for _, b := range bases {
		if !strings.Contains(path, b) {
			continue
		}

		bucket := byBase[b]
		for _, r := range bucket.routes {
			m := r.pattern.FindStringSubmatch(path)
			if m == nil {
				continue
			}
			return r, m[1:], true
		}
	}

	return nil, nil, false
}
