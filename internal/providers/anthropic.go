package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stuagano/litellm/internal/canonical"
	"github.com/stuagano/litellm/internal/credentials"
	"github.com/stuagano/litellm/internal/transport"
)

const (
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1"
	anthropicVersion         = "2023-06-01"
	anthropicDefaultMaxTok   = 4096
)

// AnthropicTransformer maps canonical chat requests to the Anthropic
// Messages API. System messages move to the top-level system field;
// max_tokens is mandatory on the wire, so an unset canonical value gets
// the documented default rather than failing.
type AnthropicTransformer struct {
	baseURL string
}

func NewAnthropicTransformer(baseURL string) *AnthropicTransformer {
	if baseURL == "" {
		baseURL = defaultAnthropicEndpoint
	}

	return &AnthropicTransformer{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (t *AnthropicTransformer) Descriptor() Descriptor {
	return Descriptor{
		ID:              "anthropic",
		Operations:      []canonical.Operation{canonical.OpChat},
		CredentialShape: credentials.ShapeAPIKey,
		Endpoint:        t.baseURL,
		Streaming:       true,
	}
}

// Anthropic wire formats.

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model         string             `json:"model"`
	System        string             `json:"system,omitempty"`
	Messages      []anthropicMessage `json:"messages"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	TopK          *int               `json:"top_k,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role,omitempty"`
	Model      string             `json:"model,omitempty"`
	Content    []anthropicContent `json:"content,omitempty"`
	StopReason *string            `json:"stop_reason,omitempty"`
	Usage      *anthropicUsage    `json:"usage,omitempty"`
	Error      *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// anthropicStreamEvent covers the SSE event envelope for streaming
// responses (message_start, content_block_delta, message_delta).
type anthropicStreamEvent struct {
	Type    string             `json:"type"`
	Message *anthropicResponse `json:"message,omitempty"`
	Index   int                `json:"index,omitempty"`
	Delta   *anthropicDelta    `json:"delta,omitempty"`
	Usage   *anthropicUsage    `json:"usage,omitempty"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicDelta struct {
	Type       string  `json:"type,omitempty"`
	Text       string  `json:"text,omitempty"`
	StopReason *string `json:"stop_reason,omitempty"`
}

func (t *AnthropicTransformer) ToProvider(req *canonical.Request) (*transport.Request, error) {
	if req.Operation != canonical.OpChat {
		return nil, canonical.Errorf(canonical.UnsupportedCapability,
			"anthropic transformer cannot build operation %q", req.Operation)
	}

	var system string

	messages := make([]anthropicMessage, 0, len(req.Messages))

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if system != "" {
				system += "\n"
			}

			system += msg.Content

			continue
		}

		messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	maxTokens := anthropicDefaultMaxTok
	if req.Params.MaxTokens != nil {
		maxTokens = *req.Params.MaxTokens
	}

	body, err := json.Marshal(anthropicRequest{
		Model:         req.Model,
		System:        system,
		Messages:      messages,
		MaxTokens:     maxTokens,
		Temperature:   req.Params.Temperature,
		TopP:          req.Params.TopP,
		TopK:          req.Params.TopK,
		StopSequences: req.Params.StopSequences,
		Stream:        req.Stream,
	})
	if err != nil {
		return nil, canonical.Errorf(canonical.InvalidRequest, "marshal anthropic request: %v", err)
	}

	header := make(http.Header)
	header.Set("anthropic-version", anthropicVersion)

	return &transport.Request{
		Method: http.MethodPost,
		URL:    t.baseURL + "/messages",
		Header: header,
		Body:   body,
	}, nil
}

func (t *AnthropicTransformer) FromProvider(op canonical.Operation, resp *transport.Response) (*canonical.Response, error) {
	var parsed anthropicResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return nil, canonical.Errorf(statusKind(resp.StatusCode),
				"anthropic returned status %d", resp.StatusCode).WithCode(fmt.Sprintf("%d", resp.StatusCode))
		}

		return nil, canonical.Errorf(canonical.Unknown, "unparseable anthropic response: %v", err)
	}

	if parsed.Error != nil {
		return nil, classifyAnthropicError(parsed.Error, resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		return nil, canonical.Errorf(statusKind(resp.StatusCode),
			"anthropic returned status %d", resp.StatusCode).WithCode(fmt.Sprintf("%d", resp.StatusCode))
	}

	out := &canonical.Response{
		Operation: op,
		ID:        parsed.ID,
		Model:     parsed.Model,
		Raw:       resp.Body,
	}

	if parsed.Usage != nil {
		out.Usage = canonical.Usage{
			InputTokens:  parsed.Usage.InputTokens,
			OutputTokens: parsed.Usage.OutputTokens,
		}
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	out.Items = append(out.Items, canonical.Item{
		Role:         parsed.Role,
		Content:      text.String(),
		FinishReason: anthropicFinishReason(parsed.StopReason),
	})

	return out, nil
}

// anthropicErrorTable maps Anthropic error types onto the canonical
// taxonomy; unmapped types fall back to the HTTP status class.
var anthropicErrorTable = map[string]canonical.ErrorKind{
	"invalid_request_error": canonical.InvalidRequest,
	"authentication_error":  canonical.AuthError,
	"permission_error":      canonical.AuthError,
	"not_found_error":       canonical.InvalidRequest,
	"request_too_large":     canonical.InvalidRequest,
	"rate_limit_error":      canonical.RateLimited,
	"api_error":             canonical.ProviderUnavailable,
	"overloaded_error":      canonical.ProviderUnavailable,
	"timeout_error":         canonical.Timeout,
}

func classifyAnthropicError(apiErr *anthropicError, status int) *canonical.Error {
	kind, mapped := anthropicErrorTable[apiErr.Type]
	if !mapped {
		kind = statusKind(status)
	}

	return canonical.Errorf(kind, "%s", apiErr.Message).WithCode(apiErr.Type)
}

func anthropicFinishReason(reason *string) string {
	if reason == nil {
		return ""
	}

	switch *reason {
	case "end_turn", "stop_sequence", "":
		return FinishStop
	case "max_tokens":
		return FinishLength
	case "refusal":
		return FinishFilter
	default:
		return FinishStop
	}
}

// TransformStream converts one Messages API SSE payload into canonical
// fragments. message_start seeds the stream identity, content deltas
// become item fragments, and message_delta closes the stream with the
// stop reason and final usage.
func (t *AnthropicTransformer) TransformStream(chunk []byte, state *StreamState) ([]canonical.Response, error) {
	var event anthropicStreamEvent
	if err := json.Unmarshal(chunk, &event); err != nil {
		return nil, fmt.Errorf("unmarshal anthropic stream event: %w", err)
	}

	switch event.Type {
	case "message_start":
		if event.Message != nil {
			state.MessageID = event.Message.ID
			state.Model = event.Message.Model

			if event.Message.Usage != nil {
				state.Usage.InputTokens = event.Message.Usage.InputTokens
				state.UsageSeen = true
			}
		}

		return nil, nil

	case "content_block_delta":
		if event.Delta == nil || event.Delta.Text == "" {
			return nil, nil
		}

		item := canonical.Item{Content: event.Delta.Text}
		if !state.RoleSent {
			item.Role = "assistant"
			state.RoleSent = true
		}

		return []canonical.Response{{
			Operation: canonical.OpChat,
			ID:        state.MessageID,
			Model:     state.Model,
			Items:     []canonical.Item{item},
		}}, nil

	case "message_delta":
		if state.Finished {
			return nil, nil
		}

		state.Finished = true

		if event.Usage != nil {
			state.Usage.OutputTokens = event.Usage.OutputTokens
			state.UsageSeen = true
		}

		var stopReason *string
		if event.Delta != nil {
			stopReason = event.Delta.StopReason
		}

		final := canonical.Response{
			Operation: canonical.OpChat,
			ID:        state.MessageID,
			Model:     state.Model,
			Items: []canonical.Item{{
				FinishReason: anthropicFinishReason(stopReason),
			}},
		}

		if state.UsageSeen {
			final.Usage = state.Usage
		}

		return []canonical.Response{final}, nil

	case "error":
		if event.Error != nil {
			return nil, classifyAnthropicError(event.Error, http.StatusOK)
		}

		return nil, nil

	default:
		// ping, content_block_start, content_block_stop, message_stop
		return nil, nil
	}
}
