package siesta

// header is a single ordered header entry. Headers are stored as an
// insertion-ordered list rather than a map because duplicate keys are legal
// and must round-trip in the order they were added (spec §4.2).
type header struct {
	key   string
	value string
}

// Response is the mutable outbound response a Handler fills in. It is
// single-owner for the duration of a single Handler invocation (spec §4.2);
// after the Handler returns, the dispatcher serializes it onto the wire and
// it must not be touched again.
type Response struct {
	status  Status
	reason  string
	headers []header
	body    []byte
}

func newResponse() *Response {
	return &Response{status: StatusOK}
}

// AddHeader appends a response header. Unlike SetStatus, repeated calls
// with the same key add additional values rather than replacing the
// previous one.
func (res *Response) AddHeader(key, value string) {
	res.headers = append(res.headers, header{key: key, value: value})
}

// Headers returns the headers added so far, in insertion order.
func (res *Response) Headers() []struct{ Key, Value string } {
	out := make([]struct{ Key, Value string }, len(res.headers))
	for i, h := range res.headers {
		out[i] = struct{ Key, Value string }{h.key, h.value}
	}
	return out
}

// SetBody copies data into the response body.
func (res *Response) SetBody(data []byte) {
	res.body = append([]byte(nil), data...)
}

// SetBodyString copies the bytes of s into the response body.
func (res *Response) SetBodyString(s string) {
	res.body = []byte(s)
}

// SetStatus sets the outbound status code and, optionally, a reason phrase
// that overrides the transport's default for that status (spec §4.2,
// §4.3 step 6).
func (res *Response) SetStatus(status Status, reason ...string) {
	res.status = status
	if len(reason) > 0 {
		res.reason = reason[0]
	} else {
		res.reason = ""
	}
}

// Status returns the currently-set status code.
func (res *Response) Status() Status { return res.status }
