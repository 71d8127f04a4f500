package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuagano/litellm/internal/canonical"
	"github.com/stuagano/litellm/internal/credentials"
	"github.com/stuagano/litellm/internal/providers"
	"github.com/stuagano/litellm/internal/transport"
)

type stubTransport struct {
	response  *transport.Response
	sendErr   error
	stream    transport.Stream
	streamErr error

	lastReq   *transport.Request
	sendCalls int
}

func (s *stubTransport) Send(_ context.Context, req *transport.Request) (*transport.Response, error) {
	s.lastReq = req
	s.sendCalls++

	if s.sendErr != nil {
		return nil, s.sendErr
	}

	return s.response, nil
}

func (s *stubTransport) OpenStream(_ context.Context, req *transport.Request) (transport.Stream, error) {
	s.lastReq = req

	if s.streamErr != nil {
		return nil, s.streamErr
	}

	return s.stream, nil
}

type stubStream struct {
	chunks [][]byte
	pos    int
	closed bool
}

func (s *stubStream) Recv() ([]byte, error) {
	if s.closed || s.pos >= len(s.chunks) {
		return nil, io.EOF
	}

	chunk := s.chunks[s.pos]
	s.pos++

	return chunk, nil
}

func (s *stubStream) Close() error {
	s.closed = true
	return nil
}

func newTestHandler(t *testing.T, providerID string, tr transport.Transport) *Handler {
	t.Helper()

	registry := providers.NewRegistry()
	require.NoError(t, registry.Initialize())

	transformer, exists := registry.Get(providerID)
	require.True(t, exists)

	creds := credentials.NewStaticSource(map[string]string{
		"openai":    "sk-test",
		"anthropic": "ant-test",
		"gemini":    "gm-test",
		"vertex":    "oauth-test",
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return New(transformer, registry, tr, creds, 30*time.Second, logger)
}

func TestHandler_Execute_Chat(t *testing.T) {
	tr := &stubTransport{
		response: &transport.Response{
			StatusCode: 200,
			Body: []byte(`{
				"id": "chatcmpl-1",
				"model": "gpt-4o",
				"choices": [{"message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
				"usage": {"prompt_tokens": 3, "completion_tokens": 2}
			}`),
		},
	}

	h := newTestHandler(t, "openai", tr)

	req, err := canonical.NewRequest(canonical.OpChat, "gpt-4o", []canonical.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	resp, err := h.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, canonical.OpChat, resp.Operation)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, 5, resp.Usage.Total())

	require.NotNil(t, tr.lastReq)
	assert.Equal(t, "Bearer sk-test", tr.lastReq.Header.Get("Authorization"),
		"handler attaches bearer credentials")
	assert.Equal(t, 30*time.Second, tr.lastReq.Timeout)
}

func TestHandler_Execute_QueryKeyCredentials(t *testing.T) {
	tr := &stubTransport{
		response: &transport.Response{
			StatusCode: 200,
			Body:       []byte(`{"candidates": [{"content": {"parts": [{"text": "hi"}]}, "finishReason": "STOP"}]}`),
		},
	}

	h := newTestHandler(t, "gemini", tr)

	req, err := canonical.NewRequest(canonical.OpChat, "gemini-2.0-flash", []canonical.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, tr.lastReq)
	assert.Contains(t, tr.lastReq.URL, "key=gm-test", "gemini credentials ride the query string")
	assert.Empty(t, tr.lastReq.Header.Get("Authorization"))
}

func TestHandler_Execute_RejectsStreamFlag(t *testing.T) {
	tr := &stubTransport{}
	h := newTestHandler(t, "openai", tr)

	req, err := canonical.NewRequest(canonical.OpChat, "gpt-4o", []canonical.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), req.WithStream(true))
	require.Error(t, err)
	assert.Equal(t, canonical.InvalidRequest, canonical.KindOf(err))
	assert.Zero(t, tr.sendCalls)
}

func TestHandler_Execute_CapabilityCheckBeforeNetwork(t *testing.T) {
	tr := &stubTransport{}
	h := newTestHandler(t, "openai", tr)

	req, err := canonical.NewRequest(canonical.OpOnlinePredict, "gpt-4o", nil)
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, canonical.UnsupportedCapability, canonical.KindOf(err))
	assert.Zero(t, tr.sendCalls, "no network call after a failed capability check")
}

func TestHandler_Execute_TransportTimeout(t *testing.T) {
	tr := &stubTransport{sendErr: context.DeadlineExceeded}
	h := newTestHandler(t, "openai", tr)

	req, err := canonical.NewRequest(canonical.OpChat, "gpt-4o", []canonical.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, canonical.Timeout, canonical.KindOf(err))
}

func TestHandler_Execute_TransportFailure(t *testing.T) {
	tr := &stubTransport{sendErr: errors.New("connection refused")}
	h := newTestHandler(t, "openai", tr)

	req, err := canonical.NewRequest(canonical.OpChat, "gpt-4o", []canonical.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, canonical.ProviderUnavailable, canonical.KindOf(err),
		"raw transport errors never escape")
}

func TestHandler_Execute_MissingCredentials(t *testing.T) {
	registry := providers.NewRegistry()
	require.NoError(t, registry.Initialize())

	transformer, _ := registry.Get("openai")
	creds := credentials.NewStaticSource(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Setenv("LITELLM_OPENAI_API_KEY", "")

	tr := &stubTransport{}
	h := New(transformer, registry, tr, creds, time.Second, logger)

	req, err := canonical.NewRequest(canonical.OpChat, "gpt-4o", []canonical.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	_, err = h.Execute(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, canonical.AuthError, canonical.KindOf(err))
	assert.Zero(t, tr.sendCalls)
}

func TestHandler_Execute_BackfillsUsage(t *testing.T) {
	tr := &stubTransport{
		response: &transport.Response{
			StatusCode: 200,
			Body:       []byte(`{"id": "c1", "model": "gpt-4o", "choices": [{"message": {"role": "assistant", "content": "hello world"}, "finish_reason": "stop"}]}`),
		},
	}

	h := newTestHandler(t, "openai", tr)

	req, err := canonical.NewRequest(canonical.OpChat, "gpt-4o", []canonical.Message{{Role: "user", Content: "say hello"}})
	require.NoError(t, err)

	resp, err := h.Execute(context.Background(), req)
	require.NoError(t, err)

	assert.Positive(t, resp.Usage.InputTokens, "missing usage gets estimated")
	assert.Positive(t, resp.Usage.OutputTokens)
}

func TestHandler_Stream(t *testing.T) {
	upstream := &stubStream{chunks: [][]byte{
		[]byte(`{"id":"c1","model":"gpt-4o","choices":[{"delta":{"role":"assistant","content":"Hel"}}]}`),
		[]byte(`{"id":"c1","model":"gpt-4o","choices":[{"delta":{"content":"lo"}}]}`),
		[]byte(`{"id":"c1","model":"gpt-4o","choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`),
	}}

	tr := &stubTransport{stream: upstream}
	h := newTestHandler(t, "openai", tr)

	req, err := canonical.NewRequest(canonical.OpChat, "gpt-4o", []canonical.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	stream, err := h.Stream(context.Background(), req)
	require.NoError(t, err)

	assert.Contains(t, string(tr.lastReq.Body), `"stream":true`, "wire request carries the stream flag")

	resp, err := stream.Collect()
	require.NoError(t, err)

	assert.Equal(t, "Hello", resp.Text())
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "assistant", resp.Items[0].Role)
	assert.Equal(t, providers.FinishStop, resp.Items[0].FinishReason)
	assert.Equal(t, 5, resp.Usage.Total())
	assert.True(t, upstream.closed, "collect releases the transport stream")
}

func TestHandler_Stream_CancelStopsDelivery(t *testing.T) {
	upstream := &stubStream{chunks: [][]byte{
		[]byte(`{"id":"c1","model":"gpt-4o","choices":[{"delta":{"role":"assistant","content":"one"}}]}`),
		[]byte(`{"id":"c1","model":"gpt-4o","choices":[{"delta":{"content":"two"}}]}`),
		[]byte(`{"id":"c1","model":"gpt-4o","choices":[{"delta":{"content":"three"}}]}`),
	}}

	tr := &stubTransport{stream: upstream}
	h := newTestHandler(t, "openai", tr)

	req, err := canonical.NewRequest(canonical.OpChat, "gpt-4o", []canonical.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	stream, err := h.Stream(context.Background(), req)
	require.NoError(t, err)

	first, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "one", first.Items[0].Content)

	require.NoError(t, stream.Close())
	assert.True(t, upstream.closed, "close releases the transport stream")

	_, err = stream.Next()
	assert.Equal(t, io.EOF, err, "no fragments after close")

	require.NoError(t, stream.Close(), "close is idempotent")
}

func TestHandler_Stream_UnsupportedProvider(t *testing.T) {
	tr := &stubTransport{}
	h := newTestHandler(t, "vertex", tr)

	req, err := canonical.NewRequest(canonical.OpChat, "gemini-2.0-flash", []canonical.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	_, err = h.Stream(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, canonical.UnsupportedCapability, canonical.KindOf(err))
}

func TestHandler_Stream_MidStreamProviderError(t *testing.T) {
	upstream := &stubStream{chunks: [][]byte{
		[]byte(`{"id":"c1","model":"gpt-4o","choices":[{"delta":{"role":"assistant","content":"par"}}]}`),
		[]byte(`{"error":{"type":"overloaded_error","message":"busy"}}`),
	}}

	tr := &stubTransport{stream: upstream}
	h := newTestHandler(t, "openai", tr)

	req, err := canonical.NewRequest(canonical.OpChat, "gpt-4o", []canonical.Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)

	stream, err := h.Stream(context.Background(), req)
	require.NoError(t, err)

	_, err = stream.Next()
	require.NoError(t, err)

	_, err = stream.Next()
	require.Error(t, err)
	assert.Equal(t, canonical.ProviderUnavailable, canonical.KindOf(err))
	assert.True(t, upstream.closed, "failure releases the transport stream")
}

func TestHandler_Poll(t *testing.T) {
	tr := &stubTransport{
		response: &transport.Response{
			StatusCode: 200,
			Body:       []byte(`{"id": "ftjob-1", "model": "gpt-4o-mini", "status": "succeeded"}`),
		},
	}

	h := newTestHandler(t, "openai", tr)

	resp, err := h.Poll(context.Background(), "ftjob-1")
	require.NoError(t, err)

	assert.Equal(t, "ftjob-1", resp.JobID)
	assert.Equal(t, canonical.JobSucceeded, resp.JobState)
	assert.True(t, resp.JobState.Terminal())

	assert.Contains(t, tr.lastReq.URL, "/fine_tuning/jobs/ftjob-1")
	assert.Equal(t, "Bearer sk-test", tr.lastReq.Header.Get("Authorization"))

	// Terminal states never change; a second poll reports the same state.
	again, err := h.Poll(context.Background(), "ftjob-1")
	require.NoError(t, err)
	assert.Equal(t, resp.JobState, again.JobState)
	assert.Equal(t, 2, tr.sendCalls)
}

func TestHandler_Poll_NoTuningSupport(t *testing.T) {
	tr := &stubTransport{}
	h := newTestHandler(t, "anthropic", tr)

	_, err := h.Poll(context.Background(), "job-1")
	require.Error(t, err)
	assert.Equal(t, canonical.UnsupportedCapability, canonical.KindOf(err))
	assert.Zero(t, tr.sendCalls)
}
