package siesta

import (
	"errors"
	"io"
	"net/http"
)

// serveHTTP is C3: the dispatch pipeline run once per incoming request
// (spec §4.3). It looks up a route under the Server's lock, releases the
// lock before invoking the matched Handler, and translates the Handler's
// outcome into a wire response. A directory mount only ever serves a request
// the route table has no match for (by method and path), so a route
// registered under a mounted subtree still takes precedence over the mount.
func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	s.mu.Lock()
	ep, isWS := s.websockets[path]
	s.mu.Unlock()
	if isWS {
		ep.serveHTTP(w, r)
		return
	}

	s.mu.Lock()
	rt, params, found := s.routes.lookup(r.Method, path)
	s.mu.Unlock()

	if !found {
		if dir, ok := s.directoryFor(path); ok {
			dir.ServeHTTP(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		return
	}

	_, queries := parseQuery(path + "?" + r.URL.RawQuery)

	body, err := readLimited(r.Body, s.config.MaxBodyBytes)
	if err != nil {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}

	req := newRequest(r, body)
	req.uri = path
	req.queries = queries
	req.params = make([]param, len(rt.paramNames))
	for i, name := range rt.paramNames {
		req.params[i] = param{name: name, value: params[i]}
	}

	res := newResponse()

	if s.config.DispatchAsync {
		done := make(chan struct{})
		go func() {
			defer close(done)
			s.invoke(rt.handler, req, res)
		}()
		<-done
	} else {
		s.invoke(rt.handler, req, res)
	}

	writeResponse(w, res)
}

// invoke runs a matched Handler and folds any returned error into the
// Response's status, per spec §4.3 step 5/6: a *StatusError sets the status
// it carries, any other error becomes a 500 whose reason is the error's own
// message (with no body leaked), and a nil error leaves whatever the
// Handler already set.
func (s *Server) invoke(h Handler, req *Request, res *Response) {
	err := h(req, res)
	if err == nil {
		return
	}

	var se *StatusError
	if errors.As(err, &se) {
		if se.Reason != "" {
			res.SetStatus(se.Status, se.Reason)
		} else {
			res.SetStatus(se.Status)
		}
		return
	}

	s.log.Errorf("handler error for %s %s: %v", req.method, req.uri, err)
	res.SetStatus(StatusInternalServerError, err.Error())
	res.body = nil
}

// readLimited reads at most max+1 bytes from r, returning an error if that
// extra byte is present (the body exceeded the cap).
func readLimited(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return nil, nil
	}
	limited := io.LimitReader(r, max+1)
	b, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, errBodyTooLarge
	}
	return b, nil
}

var errBodyTooLarge = errors.New("siesta: request body exceeds configured limit")

// reasonHeader carries a handler-supplied reason phrase (spec §4.3 step 6).
// net/http always writes the standard reason text for a status code onto
// the wire status line; a companion siesta client reads the override from
// this header instead of the status line.
const reasonHeader = "X-Siesta-Reason"

// writeResponse serializes a Response onto the transport's ResponseWriter.
func writeResponse(w http.ResponseWriter, res *Response) {
	h := w.Header()
	for _, hdr := range res.headers {
		h.Add(hdr.key, hdr.value)
	}
	if res.reason != "" {
		h.Set(reasonHeader, res.reason)
	}
	w.WriteHeader(int(res.status))
	if len(res.body) > 0 {
		w.Write(res.body)
	}
}
