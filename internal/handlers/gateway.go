package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/stuagano/litellm/internal/canonical"
	"github.com/stuagano/litellm/internal/dispatcher"
)

// GatewayHandler exposes the dispatcher over HTTP: canonical requests
// in, canonical responses out. Streaming dispatches reply as an SSE
// stream of canonical fragments.
type GatewayHandler struct {
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger
}

func NewGatewayHandler(d *dispatcher.Dispatcher, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{
		dispatcher: d,
		logger:     logger,
	}
}

// Dispatch handles POST /v1/dispatch/{provider}.
func (h *GatewayHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("provider")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.writeError(w, canonical.Errorf(canonical.InvalidRequest, "read request body: %v", err))
		return
	}

	var req canonical.Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, canonical.Errorf(canonical.InvalidRequest, "unmarshal canonical request: %v", err))
		return
	}

	if req.Stream {
		h.dispatchStream(w, r, providerID, &req)
		return
	}

	resp, err := h.dispatcher.Dispatch(r.Context(), providerID, &req)
	if err != nil {
		h.writeError(w, canonical.AsError(err, canonical.Unknown))
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *GatewayHandler) dispatchStream(w http.ResponseWriter, r *http.Request, providerID string, req *canonical.Request) {
	stream, err := h.dispatcher.DispatchStream(r.Context(), providerID, req)
	if err != nil {
		h.writeError(w, canonical.AsError(err, canonical.Unknown))
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)

	for {
		fragment, err := stream.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			// Headers are gone; surface the error as a final SSE event.
			h.writeSSE(w, "error", canonical.AsError(err, canonical.Unknown))

			if flusher != nil {
				flusher.Flush()
			}

			return
		}

		h.writeSSE(w, "fragment", fragment)

		if flusher != nil {
			flusher.Flush()
		}
	}

	io.WriteString(w, "data: [DONE]\n\n")

	if flusher != nil {
		flusher.Flush()
	}
}

// PollJob handles GET /v1/jobs/{provider}/{id}.
func (h *GatewayHandler) PollJob(w http.ResponseWriter, r *http.Request) {
	providerID := r.PathValue("provider")
	jobID := r.PathValue("id")

	resp, err := h.dispatcher.PollJob(r.Context(), providerID, jobID)
	if err != nil {
		h.writeError(w, canonical.AsError(err, canonical.Unknown))
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ListProviders handles GET /v1/providers.
func (h *GatewayHandler) ListProviders(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.dispatcher.Registry().List())
}

func (h *GatewayHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", "error", err)
	}
}

func (h *GatewayHandler) writeSSE(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal SSE payload", "error", err)
		return
	}

	io.WriteString(w, "event: "+event+"\ndata: "+string(data)+"\n\n")
}

func (h *GatewayHandler) writeError(w http.ResponseWriter, cerr *canonical.Error) {
	h.logger.Error("Dispatch failed", "kind", string(cerr.Kind), "message", cerr.Message)
	h.writeJSON(w, httpStatus(cerr.Kind), map[string]any{"error": cerr})
}

// httpStatus maps canonical error kinds onto HTTP statuses for the
// gateway surface.
func httpStatus(kind canonical.ErrorKind) int {
	switch kind {
	case canonical.AuthError:
		return http.StatusUnauthorized
	case canonical.RateLimited:
		return http.StatusTooManyRequests
	case canonical.InvalidRequest:
		return http.StatusBadRequest
	case canonical.UnsupportedCapability:
		return http.StatusNotImplemented
	case canonical.ProviderUnavailable:
		return http.StatusBadGateway
	case canonical.Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
