package providers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuagano/litellm/internal/canonical"
	"github.com/stuagano/litellm/internal/transport"
)

func TestGeminiTransformer_Descriptor(t *testing.T) {
	transformer := NewGeminiTransformer("")
	desc := transformer.Descriptor()

	assert.Equal(t, "gemini", desc.ID)
	assert.True(t, desc.Streaming)
	assert.True(t, desc.Supports(canonical.OpChat))
	assert.True(t, desc.Supports(canonical.OpEmbedding))
	assert.False(t, desc.Supports(canonical.OpFineTune))
}

func TestGeminiTransformer_ChatRequest(t *testing.T) {
	transformer := NewGeminiTransformer("")

	temp := 0.2
	maxTokens := 100
	req := &canonical.Request{
		Operation: canonical.OpChat,
		Model:     "gemini-2.0-flash",
		Messages: []canonical.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
			{Role: "user", Content: "bye"},
		},
		Params: canonical.Params{Temperature: &temp, MaxTokens: &maxTokens},
	}

	providerReq, err := transformer.ToProvider(req)
	require.NoError(t, err)

	assert.Equal(t,
		"https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent",
		providerReq.URL)

	var wire geminiRequest
	require.NoError(t, json.Unmarshal(providerReq.Body, &wire))

	require.NotNil(t, wire.SystemInstruction)
	assert.Equal(t, "be brief", wire.SystemInstruction.Parts[0].Text)

	require.Len(t, wire.Contents, 3)
	assert.Equal(t, "user", wire.Contents[0].Role)
	assert.Equal(t, "model", wire.Contents[1].Role, "assistant role maps to model")

	require.NotNil(t, wire.GenerationConfig)
	assert.Equal(t, &temp, wire.GenerationConfig.Temperature)
	assert.Equal(t, &maxTokens, wire.GenerationConfig.MaxOutputTokens)
}

func TestGeminiTransformer_ChatRequest_Streaming(t *testing.T) {
	transformer := NewGeminiTransformer("")

	req := &canonical.Request{
		Operation: canonical.OpChat,
		Model:     "gemini-2.0-flash",
		Messages:  []canonical.Message{{Role: "user", Content: "hi"}},
		Stream:    true,
	}

	providerReq, err := transformer.ToProvider(req)
	require.NoError(t, err)
	assert.Contains(t, providerReq.URL, ":streamGenerateContent?alt=sse")
}

func TestGeminiTransformer_ChatRequest_NoParamsOmitsConfig(t *testing.T) {
	transformer := NewGeminiTransformer("")

	providerReq, err := transformer.ToProvider(&canonical.Request{
		Operation: canonical.OpChat,
		Model:     "gemini-2.0-flash",
		Messages:  []canonical.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(providerReq.Body, &wire))
	assert.NotContains(t, wire, "generationConfig")
}

func TestGeminiTransformer_EmbeddingRequest(t *testing.T) {
	transformer := NewGeminiTransformer("")

	providerReq, err := transformer.ToProvider(&canonical.Request{
		Operation: canonical.OpEmbedding,
		Model:     "text-embedding-004",
		Messages:  []canonical.Message{{Content: "embed me"}},
	})
	require.NoError(t, err)

	assert.Contains(t, providerReq.URL, "models/text-embedding-004:embedContent")

	var wire geminiEmbedRequest
	require.NoError(t, json.Unmarshal(providerReq.Body, &wire))
	assert.Equal(t, "embed me", wire.Content.Parts[0].Text)
}

func TestGeminiTransformer_FromProvider_Chat(t *testing.T) {
	transformer := NewGeminiTransformer("")

	body := []byte(`{
		"responseId": "resp-1",
		"modelVersion": "gemini-2.0-flash",
		"candidates": [{
			"content": {"role": "model", "parts": [{"text": "Hello "}, {"text": "there"}]},
			"finishReason": "STOP"
		}],
		"usageMetadata": {"promptTokenCount": 9, "candidatesTokenCount": 12}
	}`)

	resp, err := transformer.FromProvider(canonical.OpChat, &transport.Response{StatusCode: 200, Body: body})
	require.NoError(t, err)

	assert.Equal(t, "resp-1", resp.ID)
	assert.Equal(t, "gemini-2.0-flash", resp.Model)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "assistant", resp.Items[0].Role)
	assert.Equal(t, "Hello there", resp.Items[0].Content)
	assert.Equal(t, FinishStop, resp.Items[0].FinishReason)
	assert.Equal(t, 21, resp.Usage.Total())
}

func TestGeminiTransformer_FromProvider_Embedding(t *testing.T) {
	transformer := NewGeminiTransformer("")

	body := []byte(`{"embedding": {"values": [0.1, -0.2, 0.3]}}`)

	resp, err := transformer.FromProvider(canonical.OpEmbedding, &transport.Response{StatusCode: 200, Body: body})
	require.NoError(t, err)

	require.Len(t, resp.Items, 1)
	assert.Equal(t, []float64{0.1, -0.2, 0.3}, resp.Items[0].Embedding)
}

func TestGeminiTransformer_FinishReasons(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"STOP", FinishStop},
		{"MAX_TOKENS", FinishLength},
		{"SAFETY", FinishFilter},
		{"RECITATION", FinishFilter},
		{"PROHIBITED_CONTENT", FinishFilter},
		{"OTHER", FinishStop},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, geminiFinishReason(tt.reason), "reason %s", tt.reason)
	}
}

func TestGoogleErrorClassification(t *testing.T) {
	transformer := NewGeminiTransformer("")

	tests := []struct {
		name     string
		status   string
		httpCode int
		wantKind canonical.ErrorKind
	}{
		{"invalid argument", "INVALID_ARGUMENT", 400, canonical.InvalidRequest},
		{"unauthenticated", "UNAUTHENTICATED", 401, canonical.AuthError},
		{"permission denied", "PERMISSION_DENIED", 403, canonical.AuthError},
		{"resource exhausted", "RESOURCE_EXHAUSTED", 429, canonical.RateLimited},
		{"deadline exceeded", "DEADLINE_EXCEEDED", 504, canonical.Timeout},
		{"unavailable", "UNAVAILABLE", 503, canonical.ProviderUnavailable},
		{"unmapped status uses http code", "DATA_LOSS", 500, canonical.ProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := []byte(`{"error": {"code": ` +
				`400, "status": "` + tt.status + `", "message": "nope"}}`)

			_, err := transformer.FromProvider(canonical.OpChat, &transport.Response{
				StatusCode: tt.httpCode,
				Body:       body,
			})
			require.Error(t, err)

			canonicalErr := canonical.AsError(err, canonical.Unknown)
			assert.Equal(t, tt.wantKind, canonicalErr.Kind)
			assert.Equal(t, tt.status, canonicalErr.ProviderCode)
		})
	}
}

func TestGeminiTransformer_TransformStream(t *testing.T) {
	transformer := NewGeminiTransformer("")
	state := &StreamState{}

	chunks := []string{
		`{"responseId":"r1","modelVersion":"gemini-2.0-flash","candidates":[{"content":{"role":"model","parts":[{"text":"Hel"}]}}],"usageMetadata":{"promptTokenCount":9,"candidatesTokenCount":1}}`,
		`{"responseId":"r1","candidates":[{"content":{"role":"model","parts":[{"text":"lo"}]},"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":9,"candidatesTokenCount":2}}`,
	}

	var fragments []canonical.Response
	for _, chunk := range chunks {
		out, err := transformer.TransformStream([]byte(chunk), state)
		require.NoError(t, err)

		fragments = append(fragments, out...)
	}

	require.Len(t, fragments, 3)

	assert.Equal(t, "assistant", fragments[0].Items[0].Role)
	assert.Equal(t, "Hel", fragments[0].Items[0].Content)
	assert.Equal(t, "lo", fragments[1].Items[0].Content)
	assert.Equal(t, FinishStop, fragments[2].Items[0].FinishReason)
	assert.Equal(t, canonical.Usage{InputTokens: 9, OutputTokens: 2}, fragments[2].Usage,
		"last observed usage wins")
}
