package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/stuagano/litellm/internal/canonical"
	"github.com/stuagano/litellm/internal/credentials"
	"github.com/stuagano/litellm/internal/providers"
	"github.com/stuagano/litellm/internal/transport"
)

const DefaultTimeout = 120 * time.Second

// Handler orchestrates one logical call for a single provider: capability
// check, credential resolution, outbound transformation, transport
// invocation, inbound transformation. Handlers hold no request-scoped
// state and are safe for concurrent use.
type Handler struct {
	transformer providers.Transformer
	registry    *providers.Registry
	transport   transport.Transport
	creds       credentials.Source
	timeout     time.Duration
	logger      *slog.Logger
}

func New(t providers.Transformer, registry *providers.Registry, tr transport.Transport, creds credentials.Source, timeout time.Duration, logger *slog.Logger) *Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		transformer: t,
		registry:    registry,
		transport:   tr,
		creds:       creds,
		timeout:     timeout,
		logger:      logger,
	}
}

// Execute performs a single non-streaming call. Every failure path
// returns a *canonical.Error; no transport error escapes raw.
func (h *Handler) Execute(ctx context.Context, req *canonical.Request) (*canonical.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if req.Stream {
		return nil, canonical.Errorf(canonical.InvalidRequest,
			"streaming requests go through Stream, not Execute")
	}

	desc := h.transformer.Descriptor()

	// Capability check before any network activity.
	if _, err := h.registry.Resolve(desc.ID, req.Operation); err != nil {
		return nil, canonical.AsError(err, canonical.Unknown)
	}

	providerReq, err := h.prepare(req)
	if err != nil {
		return nil, canonical.AsError(err, canonical.Unknown)
	}

	start := time.Now()

	providerResp, err := h.transport.Send(ctx, providerReq)
	if err != nil {
		return nil, transportError(desc.ID, err)
	}

	resp, err := h.transformer.FromProvider(req.Operation, providerResp)
	if err != nil {
		return nil, canonical.AsError(err, canonical.Unknown)
	}

	h.backfillUsage(req, resp)

	h.logger.Debug("call completed",
		"provider", desc.ID,
		"operation", string(req.Operation),
		"model", req.Model,
		"duration", time.Since(start),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)

	return resp, nil
}

// Stream performs a streaming call and returns a lazy, finite,
// non-restartable sequence of canonical fragments. Closing the stream
// (or cancelling ctx) releases the transport connection.
func (h *Handler) Stream(ctx context.Context, req *canonical.Request) (*Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	desc := h.transformer.Descriptor()

	if _, err := h.registry.Resolve(desc.ID, req.Operation); err != nil {
		return nil, canonical.AsError(err, canonical.Unknown)
	}

	if !desc.Streaming {
		return nil, canonical.Errorf(canonical.UnsupportedCapability,
			"provider %q does not support streaming", desc.ID)
	}

	providerReq, err := h.prepare(req.WithStream(true))
	if err != nil {
		return nil, canonical.AsError(err, canonical.Unknown)
	}

	upstream, err := h.transport.OpenStream(ctx, providerReq)
	if err != nil {
		return nil, transportError(desc.ID, err)
	}

	h.logger.Debug("stream opened", "provider", desc.ID, "model", req.Model)

	return newStream(h.transformer, upstream), nil
}

// Poll looks up the current status of a fine-tune job. Polls are
// independent and idempotent; terminal states never change.
func (h *Handler) Poll(ctx context.Context, jobID string) (*canonical.Response, error) {
	desc := h.transformer.Descriptor()

	poller, ok := h.transformer.(providers.JobPoller)
	if !ok {
		return nil, canonical.Errorf(canonical.UnsupportedCapability,
			"provider %q does not support fine-tune job polling", desc.ID)
	}

	providerReq, err := poller.PollRequest(jobID)
	if err != nil {
		return nil, canonical.AsError(err, canonical.Unknown)
	}

	if err := h.applyCredentials(providerReq); err != nil {
		return nil, canonical.AsError(err, canonical.AuthError)
	}

	providerReq.Timeout = h.timeout

	providerResp, err := h.transport.Send(ctx, providerReq)
	if err != nil {
		return nil, transportError(desc.ID, err)
	}

	resp, err := h.transformer.FromProvider(canonical.OpFineTune, providerResp)
	if err != nil {
		return nil, canonical.AsError(err, canonical.Unknown)
	}

	return resp, nil
}

// prepare builds the provider wire request and attaches credentials and
// the per-call timeout bound.
func (h *Handler) prepare(req *canonical.Request) (*transport.Request, error) {
	providerReq, err := h.transformer.ToProvider(req)
	if err != nil {
		return nil, err
	}

	if err := h.applyCredentials(providerReq); err != nil {
		return nil, err
	}

	providerReq.Timeout = h.timeout

	return providerReq, nil
}

func (h *Handler) applyCredentials(providerReq *transport.Request) error {
	desc := h.transformer.Descriptor()

	material, err := h.creds.Resolve(desc.ID, desc.CredentialShape)
	if err != nil {
		return err
	}

	parsed, err := url.Parse(providerReq.URL)
	if err != nil {
		return canonical.Errorf(canonical.InvalidRequest, "invalid provider endpoint %q: %v", providerReq.URL, err)
	}

	query := parsed.Query()
	material.Apply(providerReq.Header, query)
	parsed.RawQuery = query.Encode()
	providerReq.URL = parsed.String()

	return nil
}

// transportError classifies a transport failure: deadline expiry
// surfaces as Timeout, everything else as ProviderUnavailable. Raw
// transport errors never reach the caller.
func transportError(provider string, err error) *canonical.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return canonical.Errorf(canonical.Timeout, "call to provider %q timed out", provider)
	}

	return canonical.Errorf(canonical.ProviderUnavailable, "call to provider %q failed: %v", provider, err)
}
