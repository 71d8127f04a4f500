package transport

import (
	"context"
	"net/http"
	"time"
)

// Request is a provider-specific wire request produced by a transformer.
// The body is already in the provider's format; the transport only moves
// bytes and never interprets them.
type Request struct {
	Method  string
	URL     string
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// Response is the provider's raw reply for a non-streaming call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Stream yields successive provider payloads from a streaming call.
// Recv returns io.EOF when the provider finishes normally. Close releases
// the underlying connection and is safe to call more than once.
type Stream interface {
	Recv() ([]byte, error)
	Close() error
}

// Transport is the narrow contract the gateway core depends on. Retry
// and backoff policy belong to implementations; the core only supplies a
// per-call upper-bound timeout and a cancellable context.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
	OpenStream(ctx context.Context, req *Request) (Stream, error)
}
