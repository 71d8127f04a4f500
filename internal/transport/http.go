package transport

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// HTTPTransport sends provider requests over net/http. It handles gzip
// and brotli response decompression and exposes SSE bodies as a Stream
// of data payloads.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds a transport around the given client. A nil
// client falls back to http.DefaultClient; per-request timeouts come
// from the context deadline set by the handler.
func NewHTTPTransport(client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}

	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	resp, err := t.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyReader, err := decompressReader(resp)
	if err != nil {
		return nil, err
	}

	if closer, ok := bodyReader.(io.Closer); ok {
		defer closer.Close()
	}

	body, err := io.ReadAll(bodyReader)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (t *HTTPTransport) OpenStream(ctx context.Context, req *Request) (Stream, error) {
	var cancel context.CancelFunc = func() {}
	if req.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
	}

	resp, err := t.do(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	bodyReader, err := decompressReader(resp)
	if err != nil {
		resp.Body.Close()
		cancel()

		return nil, err
	}

	// Non-200 streaming calls deliver an error document instead of SSE.
	// Surface it as a single payload so the transformer can classify it.
	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(bodyReader)
		resp.Body.Close()
		cancel()

		if readErr != nil {
			return nil, readErr
		}

		return &errorStream{status: resp.StatusCode, body: body}, nil
	}

	return &sseStream{
		scanner: bufio.NewScanner(bodyReader),
		body:    resp.Body,
		cancel:  cancel,
	}, nil
}

func (t *HTTPTransport) do(ctx context.Context, req *Request) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}

	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	if httpReq.Header.Get("Content-Type") == "" && len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return t.client.Do(httpReq)
}

func decompressReader(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// sseStream scans a text/event-stream body and yields the payload of
// each data line. SSE comments and blank lines are skipped; the
// conventional [DONE] marker terminates the stream.
type sseStream struct {
	scanner *bufio.Scanner
	body    io.Closer
	cancel  context.CancelFunc
	closed  bool
}

func (s *sseStream) Recv() ([]byte, error) {
	if s.closed {
		return nil, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())

		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
			continue
		}

		if line == "data: [DONE]" {
			s.Close()
			return nil, io.EOF
		}

		if data, ok := strings.CutPrefix(line, "data: "); ok {
			return []byte(data), nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		return nil, err
	}

	s.Close()

	return nil, io.EOF
}

func (s *sseStream) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true
	s.cancel()

	return s.body.Close()
}

// errorStream delivers a single non-SSE error body, then EOF.
type errorStream struct {
	status    int
	body      []byte
	delivered bool
}

func (s *errorStream) Recv() ([]byte, error) {
	if s.delivered {
		return nil, io.EOF
	}

	s.delivered = true

	return s.body, nil
}

func (s *errorStream) Close() error { return nil }

// StatusCode exposes the upstream status for error classification.
func (s *errorStream) StatusCode() int { return s.status }
