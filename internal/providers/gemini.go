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

const defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"

// GeminiTransformer maps canonical chat and embedding requests to the
// Gemini generateContent and embedContent endpoints. System messages
// become systemInstruction; stop_sequences map to stopSequences.
type GeminiTransformer struct {
	baseURL string
}

func NewGeminiTransformer(baseURL string) *GeminiTransformer {
	if baseURL == "" {
		baseURL = defaultGeminiEndpoint
	}

	return &GeminiTransformer{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (t *GeminiTransformer) Descriptor() Descriptor {
	return Descriptor{
		ID:              "gemini",
		Operations:      []canonical.Operation{canonical.OpChat, canonical.OpEmbedding},
		CredentialShape: credentials.ShapeQueryKey,
		Endpoint:        t.baseURL,
		Streaming:       true,
	}
}

// Gemini wire formats.

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiEmbedRequest struct {
	Content geminiContent `json:"content"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates,omitempty"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
	ModelVersion  string            `json:"modelVersion,omitempty"`
	ResponseID    string            `json:"responseId,omitempty"`
	Embedding     *geminiEmbedding  `json:"embedding,omitempty"`
	Error         *geminiError      `json:"error,omitempty"`
}

type geminiCandidate struct {
	Content      *geminiContent `json:"content,omitempty"`
	FinishReason string         `json:"finishReason,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount,omitempty"`
	CandidatesTokenCount int `json:"candidatesTokenCount,omitempty"`
}

type geminiEmbedding struct {
	Values []float64 `json:"values"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (t *GeminiTransformer) ToProvider(req *canonical.Request) (*transport.Request, error) {
	switch req.Operation {
	case canonical.OpChat:
		return t.chatRequest(req)
	case canonical.OpEmbedding:
		return t.embeddingRequest(req)
	default:
		return nil, canonical.Errorf(canonical.UnsupportedCapability,
			"gemini transformer cannot build operation %q", req.Operation)
	}
}

func (t *GeminiTransformer) chatRequest(req *canonical.Request) (*transport.Request, error) {
	var system *geminiContent

	contents := make([]geminiContent, 0, len(req.Messages))

	for _, msg := range req.Messages {
		if msg.Role == "system" {
			if system == nil {
				system = &geminiContent{}
			}

			system.Parts = append(system.Parts, geminiPart{Text: msg.Content})

			continue
		}

		role := msg.Role
		if role == "assistant" {
			role = "model"
		}

		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}

	var genConfig *geminiGenerationConfig

	p := req.Params
	if p.Temperature != nil || p.TopP != nil || p.TopK != nil || p.MaxTokens != nil || len(p.StopSequences) > 0 {
		genConfig = &geminiGenerationConfig{
			Temperature:     p.Temperature,
			TopP:            p.TopP,
			TopK:            p.TopK,
			MaxOutputTokens: p.MaxTokens,
			StopSequences:   p.StopSequences,
		}
	}

	body, err := json.Marshal(geminiRequest{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig:  genConfig,
	})
	if err != nil {
		return nil, canonical.Errorf(canonical.InvalidRequest, "marshal gemini request: %v", err)
	}

	verb := "generateContent"
	if req.Stream {
		verb = "streamGenerateContent?alt=sse"
	}

	return &transport.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/models/%s:%s", t.baseURL, req.Model, verb),
		Header: make(http.Header),
		Body:   body,
	}, nil
}

func (t *GeminiTransformer) embeddingRequest(req *canonical.Request) (*transport.Request, error) {
	if len(req.Messages) == 0 {
		return nil, canonical.Errorf(canonical.InvalidRequest, "embedding request requires at least one input item")
	}

	parts := make([]geminiPart, 0, len(req.Messages))
	for _, msg := range req.Messages {
		parts = append(parts, geminiPart{Text: msg.Content})
	}

	body, err := json.Marshal(geminiEmbedRequest{Content: geminiContent{Parts: parts}})
	if err != nil {
		return nil, canonical.Errorf(canonical.InvalidRequest, "marshal gemini embed request: %v", err)
	}

	return &transport.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/models/%s:embedContent", t.baseURL, req.Model),
		Header: make(http.Header),
		Body:   body,
	}, nil
}

func (t *GeminiTransformer) FromProvider(op canonical.Operation, resp *transport.Response) (*canonical.Response, error) {
	var parsed geminiResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return nil, canonical.Errorf(statusKind(resp.StatusCode),
				"gemini returned status %d", resp.StatusCode).WithCode(fmt.Sprintf("%d", resp.StatusCode))
		}

		return nil, canonical.Errorf(canonical.Unknown, "unparseable gemini response: %v", err)
	}

	if parsed.Error != nil {
		return nil, classifyGoogleError(parsed.Error, resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		return nil, canonical.Errorf(statusKind(resp.StatusCode),
			"gemini returned status %d", resp.StatusCode).WithCode(fmt.Sprintf("%d", resp.StatusCode))
	}

	out := &canonical.Response{
		Operation: op,
		ID:        parsed.ResponseID,
		Model:     parsed.ModelVersion,
		Raw:       resp.Body,
	}

	if parsed.UsageMetadata != nil {
		out.Usage = canonical.Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
		}
	}

	if op == canonical.OpEmbedding {
		if parsed.Embedding != nil {
			out.Items = append(out.Items, canonical.Item{Embedding: parsed.Embedding.Values})
		}

		return out, nil
	}

	for _, candidate := range parsed.Candidates {
		var text strings.Builder

		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				text.WriteString(part.Text)
			}
		}

		out.Items = append(out.Items, canonical.Item{
			Role:         "assistant",
			Content:      text.String(),
			FinishReason: geminiFinishReason(candidate.FinishReason),
		})
	}

	return out, nil
}

// googleErrorTable maps google.rpc status strings onto the canonical
// taxonomy. Shared with the Vertex transformer, which reports errors in
// the same envelope.
var googleErrorTable = map[string]canonical.ErrorKind{
	"INVALID_ARGUMENT":    canonical.InvalidRequest,
	"FAILED_PRECONDITION": canonical.InvalidRequest,
	"OUT_OF_RANGE":        canonical.InvalidRequest,
	"NOT_FOUND":           canonical.InvalidRequest,
	"UNAUTHENTICATED":     canonical.AuthError,
	"PERMISSION_DENIED":   canonical.AuthError,
	"RESOURCE_EXHAUSTED":  canonical.RateLimited,
	"DEADLINE_EXCEEDED":   canonical.Timeout,
	"UNAVAILABLE":         canonical.ProviderUnavailable,
	"INTERNAL":            canonical.ProviderUnavailable,
	"ABORTED":             canonical.ProviderUnavailable,
}

func classifyGoogleError(apiErr *geminiError, status int) *canonical.Error {
	kind, mapped := googleErrorTable[apiErr.Status]
	if !mapped {
		kind = statusKind(status)
	}

	return canonical.Errorf(kind, "%s", apiErr.Message).WithCode(apiErr.Status)
}

func geminiFinishReason(reason string) string {
	switch reason {
	case "STOP", "":
		return FinishStop
	case "MAX_TOKENS":
		return FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return FinishFilter
	default:
		return FinishStop
	}
}

// TransformStream converts one streamGenerateContent SSE payload into
// canonical fragments. Gemini repeats usage metadata on every chunk;
// the last observed value wins and rides on the finishing fragment.
func (t *GeminiTransformer) TransformStream(chunk []byte, state *StreamState) ([]canonical.Response, error) {
	var parsed geminiResponse
	if err := json.Unmarshal(chunk, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal gemini stream chunk: %w", err)
	}

	if parsed.Error != nil {
		return nil, classifyGoogleError(parsed.Error, http.StatusOK)
	}

	if state.MessageID == "" {
		state.MessageID = parsed.ResponseID
	}

	if state.Model == "" {
		state.Model = parsed.ModelVersion
	}

	if parsed.UsageMetadata != nil {
		state.Usage = canonical.Usage{
			InputTokens:  parsed.UsageMetadata.PromptTokenCount,
			OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
		}
		state.UsageSeen = true
	}

	var fragments []canonical.Response

	for _, candidate := range parsed.Candidates {
		if candidate.Content != nil {
			var text strings.Builder
			for _, part := range candidate.Content.Parts {
				text.WriteString(part.Text)
			}

			if text.Len() > 0 {
				item := canonical.Item{Content: text.String()}
				if !state.RoleSent {
					item.Role = "assistant"
					state.RoleSent = true
				}

				fragments = append(fragments, canonical.Response{
					Operation: canonical.OpChat,
					ID:        state.MessageID,
					Model:     state.Model,
					Items:     []canonical.Item{item},
				})
			}
		}

		if candidate.FinishReason != "" && !state.Finished {
			state.Finished = true
			final := canonical.Response{
				Operation: canonical.OpChat,
				ID:        state.MessageID,
				Model:     state.Model,
				Items: []canonical.Item{{
					FinishReason: geminiFinishReason(candidate.FinishReason),
				}},
			}

			if state.UsageSeen {
				final.Usage = state.Usage
			}

			fragments = append(fragments, final)
		}
	}

	return fragments, nil
}
