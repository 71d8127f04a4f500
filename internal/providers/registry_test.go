package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stuagano/litellm/internal/canonical"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(NewOpenAITransformer(""))
	require.NoError(t, err)

	transformer, exists := registry.Get("openai")
	assert.True(t, exists, "provider should exist after registration")
	assert.Equal(t, "openai", transformer.Descriptor().ID)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(NewOpenAITransformer("")))

	err := registry.Register(NewOpenAITransformer(""))
	require.Error(t, err, "duplicate registration must fail")
	assert.Equal(t, canonical.InvalidRequest, canonical.KindOf(err))
}

func TestRegistry_Resolve(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Initialize())

	testCases := []struct {
		name     string
		provider string
		op       canonical.Operation
		wantKind canonical.ErrorKind
	}{
		{"openai chat", "openai", canonical.OpChat, ""},
		{"openai fine_tune", "openai", canonical.OpFineTune, ""},
		{"anthropic chat", "anthropic", canonical.OpChat, ""},
		{"gemini embedding", "gemini", canonical.OpEmbedding, ""},
		{"vertex online_predict", "vertex", canonical.OpOnlinePredict, ""},
		{"vertex fine_tune", "vertex", canonical.OpFineTune, ""},
		{"unknown provider", "cohere", canonical.OpChat, canonical.ProviderUnavailable},
		{"anthropic embedding unsupported", "anthropic", canonical.OpEmbedding, canonical.UnsupportedCapability},
		{"gemini fine_tune unsupported", "gemini", canonical.OpFineTune, canonical.UnsupportedCapability},
		{"openai online_predict unsupported", "openai", canonical.OpOnlinePredict, canonical.UnsupportedCapability},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			transformer, err := registry.Resolve(tc.provider, tc.op)
			if tc.wantKind == "" {
				require.NoError(t, err)
				assert.Equal(t, tc.provider, transformer.Descriptor().ID)
			} else {
				require.Error(t, err)
				assert.Equal(t, tc.wantKind, canonical.KindOf(err))
			}
		})
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Initialize())

	descriptors := registry.List()
	require.Len(t, descriptors, 4)

	ids := make([]string, 0, len(descriptors))
	for _, desc := range descriptors {
		ids = append(ids, desc.ID)
	}

	assert.Equal(t, []string{"anthropic", "gemini", "openai", "vertex"}, ids)
}

func TestRegistry_GetNonExistent(t *testing.T) {
	registry := NewRegistry()

	_, exists := registry.Get("nonexistent")
	assert.False(t, exists)
}

func TestDescriptor_Supports(t *testing.T) {
	desc := Descriptor{
		ID:         "openai",
		Operations: []canonical.Operation{canonical.OpChat, canonical.OpEmbedding},
	}

	assert.True(t, desc.Supports(canonical.OpChat))
	assert.True(t, desc.Supports(canonical.OpEmbedding))
	assert.False(t, desc.Supports(canonical.OpFineTune))
}

func TestStatusKind(t *testing.T) {
	tests := []struct {
		status int
		want   canonical.ErrorKind
	}{
		{401, canonical.AuthError},
		{403, canonical.AuthError},
		{429, canonical.RateLimited},
		{408, canonical.Timeout},
		{504, canonical.Timeout},
		{400, canonical.InvalidRequest},
		{404, canonical.InvalidRequest},
		{500, canonical.ProviderUnavailable},
		{503, canonical.ProviderUnavailable},
		{200, canonical.Unknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusKind(tt.status), "status %d", tt.status)
	}
}
