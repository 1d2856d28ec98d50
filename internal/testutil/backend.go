// Package testutil holds test doubles shared by package tests.
package testutil

import (
	"io"
	"net/http"
	"strings"
	"sync"
)

// Backend is a routed stand-in for the hosted backend. It satisfies the
// remote client's HTTPClient and routes on "METHOD /path".
type Backend struct {
	mu     sync.Mutex
	routes map[string]func(body string) (int, string)
	bodies map[string][]string
	calls  []string
}

// NewBackend returns a backend that answers 404 until routes are added.
func NewBackend() *Backend {
	return &Backend{routes: map[string]func(string) (int, string){}, bodies: map[string][]string{}}
}

// Do records the request and answers from the matching route. Like a real
// transport it refuses requests whose context is already done.
func (b *Backend) Do(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	body := ""
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	key := req.Method + " " + req.URL.Path
	b.mu.Lock()
	b.calls = append(b.calls, key)
	b.bodies[key] = append(b.bodies[key], body)
	route := b.routes[key]
	b.mu.Unlock()
	status, payload := http.StatusNotFound, `{"message":"no route for `+key+`"}`
	if route != nil {
		status, payload = route(body)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(payload)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Request:    req,
	}, nil
}

// On answers key with a fixed status and payload.
func (b *Backend) On(key string, status int, payload string) {
	b.Handle(key, func(string) (int, string) { return status, payload })
}

// Handle answers key with fn, which receives the request body.
func (b *Backend) Handle(key string, fn func(body string) (int, string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routes[key] = fn
}

// Sent returns every body received on key, oldest first.
func (b *Backend) Sent(key string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.bodies[key]...)
}

// Last returns the latest body received on key.
func (b *Backend) Last(key string) string {
	sent := b.Sent(key)
	if len(sent) == 0 {
		return ""
	}
	return sent[len(sent)-1]
}

// Called reports whether key was requested at least once.
func (b *Backend) Called(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if c == key {
			return true
		}
	}
	return false
}

// Calls lists the requested keys in order.
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}
