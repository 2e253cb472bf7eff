// Package client is the companion client library for siesta servers (spec
// §6, "Client library"). It offers blocking HTTP verbs and a WebSocket
// connect helper, both synchronous from the caller's point of view, in the
// same spirit as the server-side package's synchronous Handler contract.
package client

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultTimeout matches the original implementation's default request
// timeout of 1 second.
const defaultTimeout = time.Second

// Header is a single request header entry.
type Header struct {
	Key   string
	Value string
}

// StatusError is raised when a server response's status is not 200 OK
// (spec §6, "Response status != 200 OK raises a domain error").
type StatusError struct {
	Status int
	Reason string
}

func (e *StatusError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("siesta/client: %d %s", e.Status, e.Reason)
	}
	return fmt.Sprintf("siesta/client: %d %s", e.Status, http.StatusText(e.Status))
}

// ProtocolError is raised when a response is missing Content-Length; this
// client does not support chunked transfer-encoding (spec §6).
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "siesta/client: protocol error: " + e.Reason
}

// reasonHeader mirrors the server package's reasonHeader: net/http always
// writes the standard reason text on the wire status line, so a siesta
// server instead carries any handler-supplied override in this header.
const reasonHeader = "X-Siesta-Reason"

type options struct {
	headers []Header
	timeout time.Duration
}

// Option configures a single client call.
type Option func(*options)

// WithHeaders attaches extra request headers.
func WithHeaders(headers ...Header) Option {
	return func(o *options) { o.headers = append(o.headers, headers...) }
}

// WithTimeout overrides the default one-second request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// Get issues a blocking GET and returns the response body.
func Get(address string, opts ...Option) ([]byte, error) {
	return do(http.MethodGet, address, nil, "", opts...)
}

// Delete issues a blocking DELETE and returns the response body.
func Delete(address string, opts ...Option) ([]byte, error) {
	return do(http.MethodDelete, address, nil, "", opts...)
}

// Put issues a blocking PUT with body and contentType, returning the
// response body.
func Put(address string, body []byte, contentType string, opts ...Option) ([]byte, error) {
	return do(http.MethodPut, address, body, contentType, opts...)
}

// Post issues a blocking POST with body and contentType, returning the
// response body.
func Post(address string, body []byte, contentType string, opts ...Option) ([]byte, error) {
	return do(http.MethodPost, address, body, contentType, opts...)
}

// Patch issues a blocking PATCH with body and contentType, returning the
// response body.
func Patch(address string, body []byte, contentType string, opts ...Option) ([]byte, error) {
	return do(http.MethodPatch, address, body, contentType, opts...)
}

func do(method, address string, body []byte, contentType string, optFns ...Option) ([]byte, error) {
	o := options{timeout: defaultTimeout}
	for _, fn := range optFns {
		fn(&o)
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, address, reqBody)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, h := range o.headers {
		req.Header.Set(h.Key, h.Value)
	}

	httpClient := &http.Client{Timeout: o.timeout}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.ContentLength < 0 {
		return nil, &ProtocolError{Reason: "response is missing Content-Length"}
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, resp.ContentLength))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{
			Status: resp.StatusCode,
			Reason: resp.Header.Get(reasonHeader),
		}
	}

	return respBody, nil
}
