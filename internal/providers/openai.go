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

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// OpenAITransformer maps canonical requests to the OpenAI REST API:
// chat completions, legacy completions, embeddings, and fine-tuning
// jobs. Dropped on transform: top_k (no OpenAI equivalent).
type OpenAITransformer struct {
	baseURL string
}

func NewOpenAITransformer(baseURL string) *OpenAITransformer {
	if baseURL == "" {
		baseURL = defaultOpenAIEndpoint
	}

	return &OpenAITransformer{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (t *OpenAITransformer) Descriptor() Descriptor {
	return Descriptor{
		ID: "openai",
		Operations: []canonical.Operation{
			canonical.OpChat,
			canonical.OpCompletion,
			canonical.OpEmbedding,
			canonical.OpFineTune,
		},
		CredentialShape: credentials.ShapeBearer,
		Endpoint:        t.baseURL,
		Streaming:       true,
	}
}

// openAIHyperparameterRanges bounds the tuning hyperparameters the
// fine-tuning endpoint accepts. Values outside a range fail
// InvalidRequest before anything touches the network.
var openAIHyperparameterRanges = map[string][2]float64{
	"n_epochs":                 {1, 50},
	"batch_size":               {1, 256},
	"learning_rate_multiplier": {0.01, 10},
}

// OpenAI wire formats.

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	MaxTokens   *int            `json:"max_completion_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type openAICompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type openAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIFineTuneRequest struct {
	Model           string             `json:"model"`
	TrainingFile    string             `json:"training_file"`
	Hyperparameters map[string]float64 `json:"hyperparameters,omitempty"`
}

type openAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Status  string         `json:"status,omitempty"`
	Choices []openAIChoice `json:"choices,omitempty"`
	Data    []openAIDatum  `json:"data,omitempty"`
	Usage   *openAIUsage   `json:"usage,omitempty"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      *openAIMessage `json:"message,omitempty"`
	Delta        *openAIMessage `json:"delta,omitempty"`
	Text         string         `json:"text,omitempty"`
	FinishReason *string        `json:"finish_reason,omitempty"`
}

type openAIDatum struct {
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openAIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (t *OpenAITransformer) ToProvider(req *canonical.Request) (*transport.Request, error) {
	switch req.Operation {
	case canonical.OpChat:
		return t.chatRequest(req)
	case canonical.OpCompletion:
		return t.completionRequest(req)
	case canonical.OpEmbedding:
		return t.embeddingRequest(req)
	case canonical.OpFineTune:
		return t.fineTuneRequest(req)
	default:
		return nil, canonical.Errorf(canonical.UnsupportedCapability,
			"openai transformer cannot build operation %q", req.Operation)
	}
}

func (t *OpenAITransformer) chatRequest(req *canonical.Request) (*transport.Request, error) {
	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openAIMessage{Role: msg.Role, Content: msg.Content})
	}

	body, err := json.Marshal(openAIChatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		MaxTokens:   req.Params.MaxTokens,
		Stop:        req.Params.StopSequences,
		Stream:      req.Stream,
	})
	if err != nil {
		return nil, canonical.Errorf(canonical.InvalidRequest, "marshal openai chat request: %v", err)
	}

	return t.post("/chat/completions", body), nil
}

func (t *OpenAITransformer) completionRequest(req *canonical.Request) (*transport.Request, error) {
	var prompt strings.Builder
	for _, msg := range req.Messages {
		prompt.WriteString(msg.Content)
	}

	body, err := json.Marshal(openAICompletionRequest{
		Model:       req.Model,
		Prompt:      prompt.String(),
		Temperature: req.Params.Temperature,
		TopP:        req.Params.TopP,
		MaxTokens:   req.Params.MaxTokens,
		Stop:        req.Params.StopSequences,
		Stream:      req.Stream,
	})
	if err != nil {
		return nil, canonical.Errorf(canonical.InvalidRequest, "marshal openai completion request: %v", err)
	}

	return t.post("/completions", body), nil
}

func (t *OpenAITransformer) embeddingRequest(req *canonical.Request) (*transport.Request, error) {
	if len(req.Messages) == 0 {
		return nil, canonical.Errorf(canonical.InvalidRequest, "embedding request requires at least one input item")
	}

	input := make([]string, 0, len(req.Messages))
	for _, msg := range req.Messages {
		input = append(input, msg.Content)
	}

	body, err := json.Marshal(openAIEmbeddingRequest{Model: req.Model, Input: input})
	if err != nil {
		return nil, canonical.Errorf(canonical.InvalidRequest, "marshal openai embedding request: %v", err)
	}

	return t.post("/embeddings", body), nil
}

func (t *OpenAITransformer) fineTuneRequest(req *canonical.Request) (*transport.Request, error) {
	spec := req.FineTune
	if spec == nil {
		return nil, canonical.Errorf(canonical.InvalidRequest, "fine_tune operation requires a job spec")
	}

	if spec.TrainingFile == "" {
		return nil, canonical.Errorf(canonical.InvalidRequest, "fine_tune job requires a training file reference")
	}

	if err := validateHyperparameters(spec.Hyperparameters, openAIHyperparameterRanges); err != nil {
		return nil, err
	}

	model := spec.BaseModel
	if model == "" {
		model = req.Model
	}

	body, err := json.Marshal(openAIFineTuneRequest{
		Model:           model,
		TrainingFile:    spec.TrainingFile,
		Hyperparameters: spec.Hyperparameters,
	})
	if err != nil {
		return nil, canonical.Errorf(canonical.InvalidRequest, "marshal openai fine-tune request: %v", err)
	}

	return t.post("/fine_tuning/jobs", body), nil
}

// PollRequest builds the status lookup for a previously submitted
// fine-tuning job. Job IDs are opaque and passed through unchanged.
func (t *OpenAITransformer) PollRequest(jobID string) (*transport.Request, error) {
	if jobID == "" {
		return nil, canonical.Errorf(canonical.InvalidRequest, "job identifier must not be empty")
	}

	return &transport.Request{
		Method: http.MethodGet,
		URL:    t.baseURL + "/fine_tuning/jobs/" + jobID,
		Header: make(http.Header),
	}, nil
}

func (t *OpenAITransformer) post(path string, body []byte) *transport.Request {
	return &transport.Request{
		Method: http.MethodPost,
		URL:    t.baseURL + path,
		Header: make(http.Header),
		Body:   body,
	}
}

func (t *OpenAITransformer) FromProvider(op canonical.Operation, resp *transport.Response) (*canonical.Response, error) {
	var parsed openAIResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return nil, canonical.Errorf(statusKind(resp.StatusCode),
				"openai returned status %d", resp.StatusCode).WithCode(fmt.Sprintf("%d", resp.StatusCode))
		}

		return nil, canonical.Errorf(canonical.Unknown, "unparseable openai response: %v", err)
	}

	if parsed.Error != nil {
		return nil, t.classifyError(parsed.Error, resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		return nil, canonical.Errorf(statusKind(resp.StatusCode),
			"openai returned status %d", resp.StatusCode).WithCode(fmt.Sprintf("%d", resp.StatusCode))
	}

	out := &canonical.Response{
		Operation: op,
		ID:        parsed.ID,
		Model:     parsed.Model,
		Raw:       resp.Body,
	}

	if parsed.Usage != nil {
		out.Usage = canonical.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		}
	}

	switch op {
	case canonical.OpChat:
		for _, choice := range parsed.Choices {
			if choice.Message == nil {
				continue
			}

			out.Items = append(out.Items, canonical.Item{
				Role:         choice.Message.Role,
				Content:      choice.Message.Content,
				FinishReason: openAIFinishReason(choice.FinishReason),
			})
		}
	case canonical.OpCompletion:
		for _, choice := range parsed.Choices {
			out.Items = append(out.Items, canonical.Item{
				Content:      choice.Text,
				FinishReason: openAIFinishReason(choice.FinishReason),
			})
		}
	case canonical.OpEmbedding:
		for _, datum := range parsed.Data {
			out.Items = append(out.Items, canonical.Item{Embedding: datum.Embedding})
		}
	case canonical.OpFineTune:
		out.JobID = parsed.ID
		out.JobState = openAIJobState(parsed.Status)
	}

	return out, nil
}

// openAIErrorTable maps OpenAI error types and codes onto the canonical
// taxonomy. Codes absent from the table fall back to the HTTP status
// class and finally to Unknown; nothing is silently dropped.
var openAIErrorTable = map[string]canonical.ErrorKind{
	"invalid_request_error":   canonical.InvalidRequest,
	"invalid_api_key":         canonical.AuthError,
	"authentication_error":    canonical.AuthError,
	"permission_error":        canonical.AuthError,
	"not_found_error":         canonical.InvalidRequest,
	"model_not_found":         canonical.InvalidRequest,
	"context_length_exceeded": canonical.InvalidRequest,
	"rate_limit_error":        canonical.RateLimited,
	"rate_limit_exceeded":     canonical.RateLimited,
	"insufficient_quota":      canonical.RateLimited,
	"tokens_exceeded_error":   canonical.RateLimited,
	"api_error":               canonical.ProviderUnavailable,
	"server_error":            canonical.ProviderUnavailable,
	"overloaded_error":        canonical.ProviderUnavailable,
	"service_unavailable":     canonical.ProviderUnavailable,
	"timeout":                 canonical.Timeout,
}

func (t *OpenAITransformer) classifyError(apiErr *openAIError, status int) *canonical.Error {
	code := apiErr.Code
	if code == "" {
		code = apiErr.Type
	}

	kind, mapped := openAIErrorTable[apiErr.Code]
	if !mapped {
		kind, mapped = openAIErrorTable[apiErr.Type]
	}

	if !mapped {
		kind = statusKind(status)
	}

	return canonical.Errorf(kind, "%s", apiErr.Message).WithCode(code)
}

func openAIFinishReason(reason *string) string {
	if reason == nil {
		return ""
	}

	switch *reason {
	case "stop", "":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishFilter
	default:
		return FinishStop
	}
}

// openAIJobState maps fine-tuning job statuses onto canonical job
// states. Unknown statuses report as running rather than inventing a
// terminal state.
func openAIJobState(status string) canonical.JobState {
	switch status {
	case "validating_files", "queued":
		return canonical.JobPending
	case "running":
		return canonical.JobRunning
	case "succeeded":
		return canonical.JobSucceeded
	case "failed":
		return canonical.JobFailed
	case "cancelled":
		return canonical.JobCancelled
	default:
		return canonical.JobRunning
	}
}

// TransformStream converts one chat-completions SSE payload into
// canonical fragments. The first chunk yields a role fragment, content
// deltas yield item fragments, and the finishing chunk carries the
// finish reason plus usage when the provider includes it.
func (t *OpenAITransformer) TransformStream(chunk []byte, state *StreamState) ([]canonical.Response, error) {
	var parsed openAIResponse
	if err := json.Unmarshal(chunk, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal openai stream chunk: %w", err)
	}

	if parsed.Error != nil {
		return nil, t.classifyError(parsed.Error, http.StatusOK)
	}

	if state.MessageID == "" {
		state.MessageID = parsed.ID
	}

	if state.Model == "" {
		state.Model = parsed.Model
	}

	if parsed.Usage != nil {
		state.Usage = canonical.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
		}
		state.UsageSeen = true
	}

	var fragments []canonical.Response

	for _, choice := range parsed.Choices {
		delta := choice.Delta
		if delta != nil && (delta.Content != "" || (!state.RoleSent && delta.Role != "")) {
			item := canonical.Item{Content: delta.Content}
			if !state.RoleSent {
				role := delta.Role
				if role == "" {
					role = "assistant"
				}

				item.Role = role
				state.RoleSent = true
			}

			fragments = append(fragments, canonical.Response{
				Operation: canonical.OpChat,
				ID:        state.MessageID,
				Model:     state.Model,
				Items:     []canonical.Item{item},
			})
		}

		if choice.FinishReason != nil && !state.Finished {
			state.Finished = true
			final := canonical.Response{
				Operation: canonical.OpChat,
				ID:        state.MessageID,
				Model:     state.Model,
				Items: []canonical.Item{{
					FinishReason: openAIFinishReason(choice.FinishReason),
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

// validateHyperparameters checks a job's hyperparameters against the
// provider's declared ranges. Parameters the provider does not declare
// are rejected rather than passed through untested.
func validateHyperparameters(params map[string]float64, ranges map[string][2]float64) error {
	for name, value := range params {
		bounds, declared := ranges[name]
		if !declared {
			return canonical.Errorf(canonical.InvalidRequest, "unsupported hyperparameter %q", name)
		}

		if value < bounds[0] || value > bounds[1] {
			return canonical.Errorf(canonical.InvalidRequest,
				"hyperparameter %q value %g outside range [%g, %g]", name, value, bounds[0], bounds[1])
		}
	}

	return nil
}
