package handler

import (
	"io"

	"github.com/stuagano/litellm/internal/canonical"
	"github.com/stuagano/litellm/internal/providers"
	"github.com/stuagano/litellm/internal/transport"
)

// Stream is a lazy, finite, non-restartable sequence of canonical
// response fragments. Fragments are pulled on demand: nothing is read
// from the provider until Next is called. Callers must call Close (or
// drain to io.EOF, which closes implicitly); after Close no further
// fragments are ever delivered.
type Stream struct {
	transformer providers.Transformer
	upstream    transport.Stream
	state       *providers.StreamState
	pending     []canonical.Response
	closed      bool
}

func newStream(t providers.Transformer, upstream transport.Stream) *Stream {
	return &Stream{
		transformer: t,
		upstream:    upstream,
		state:       &providers.StreamState{},
	}
}

// Next returns the next fragment. It returns io.EOF when the provider
// finishes or the stream has been closed, and a *canonical.Error on
// transformation or mid-stream provider failures. A failure closes the
// stream; the transport connection is released on every exit path.
func (s *Stream) Next() (*canonical.Response, error) {
	if s.closed {
		return nil, io.EOF
	}

	for len(s.pending) == 0 {
		chunk, err := s.upstream.Recv()
		if err != nil {
			s.Close()

			if err == io.EOF {
				return nil, io.EOF
			}

			return nil, canonical.AsError(err, canonical.ProviderUnavailable)
		}

		fragments, err := s.transformer.TransformStream(chunk, s.state)
		if err != nil {
			s.Close()
			return nil, canonical.AsError(err, canonical.Unknown)
		}

		s.pending = fragments
	}

	fragment := s.pending[0]
	s.pending = s.pending[1:]

	return &fragment, nil
}

// Close releases the underlying transport stream. Safe to call more
// than once; any buffered fragments are discarded.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}

	s.closed = true
	s.pending = nil

	return s.upstream.Close()
}

// Collect drains the stream into a single accumulated response. Content
// deltas concatenate in order; the finishing fragment contributes the
// finish reason and usage. The stream is closed when Collect returns.
func (s *Stream) Collect() (*canonical.Response, error) {
	defer s.Close()

	accumulated := &canonical.Response{Operation: canonical.OpChat}

	var content string

	var role, finish string

	for {
		fragment, err := s.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return accumulated, err
		}

		if fragment.ID != "" {
			accumulated.ID = fragment.ID
		}

		if fragment.Model != "" {
			accumulated.Model = fragment.Model
		}

		if fragment.Usage.Total() > 0 {
			accumulated.Usage = fragment.Usage
		}

		for _, item := range fragment.Items {
			content += item.Content

			if item.Role != "" {
				role = item.Role
			}

			if item.FinishReason != "" {
				finish = item.FinishReason
			}
		}
	}

	accumulated.Items = []canonical.Item{{Role: role, Content: content, FinishReason: finish}}

	return accumulated, nil
}
