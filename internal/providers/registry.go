package providers

import (
	"sort"

	"github.com/stuagano/litellm/internal/canonical"
)

// Registry holds the capability table: one immutable Descriptor and
// Transformer per provider ID. It is populated once at process start
// and read-only afterwards, so concurrent Resolve calls need no
// locking.
type Registry struct {
	transformers map[string]Transformer
}

func NewRegistry() *Registry {
	return &Registry{
		transformers: make(map[string]Transformer),
	}
}

// Register adds a transformer to the registry. Registering the same
// provider ID twice is a configuration bug and fails with an
// InvalidRequest canonical error naming the duplicate.
func (r *Registry) Register(t Transformer) error {
	id := t.Descriptor().ID
	if _, exists := r.transformers[id]; exists {
		return canonical.Errorf(canonical.InvalidRequest, "duplicate provider %q", id)
	}

	r.transformers[id] = t

	return nil
}

// Resolve returns the transformer for the provider if it exists and
// declares the operation. Unknown providers fail ProviderUnavailable;
// known providers without the operation fail UnsupportedCapability.
func (r *Registry) Resolve(providerID string, op canonical.Operation) (Transformer, error) {
	t, exists := r.transformers[providerID]
	if !exists {
		return nil, canonical.Errorf(canonical.ProviderUnavailable, "unknown provider %q", providerID)
	}

	if !t.Descriptor().Supports(op) {
		return nil, canonical.Errorf(canonical.UnsupportedCapability,
			"provider %q does not support operation %q", providerID, op)
	}

	return t, nil
}

// Get retrieves a transformer by provider ID without a capability check.
func (r *Registry) Get(providerID string) (Transformer, bool) {
	t, exists := r.transformers[providerID]
	return t, exists
}

// List returns the descriptors of all registered providers, sorted by ID
// for stable CLI and HTTP output.
func (r *Registry) List() []Descriptor {
	descriptors := make([]Descriptor, 0, len(r.transformers))
	for _, t := range r.transformers {
		descriptors = append(descriptors, t.Descriptor())
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].ID < descriptors[j].ID
	})

	return descriptors
}

// Initialize registers all built-in providers with their default
// endpoints. Callers needing endpoint or project overrides register
// transformers built through the individual constructors instead.
func (r *Registry) Initialize() error {
	builtins := []Transformer{
		NewOpenAITransformer(""),
		NewAnthropicTransformer(""),
		NewGeminiTransformer(""),
		NewVertexTransformer("", "", ""),
	}

	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return err
		}
	}

	return nil
}
