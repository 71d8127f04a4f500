package credentials

import (
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/stuagano/litellm/internal/canonical"
)

// Shape tags the credential format a provider expects. Transformers
// declare a shape in their descriptor; the handler resolves material for
// that shape and applies it without the core ever inspecting the secret.
type Shape string

const (
	// ShapeBearer sends the secret as an Authorization: Bearer header.
	ShapeBearer Shape = "bearer"
	// ShapeAPIKey sends the secret as an x-api-key header.
	ShapeAPIKey Shape = "api-key"
	// ShapeQueryKey appends the secret as a key query parameter.
	ShapeQueryKey Shape = "query-key"
	// ShapeOAuth sends a short-lived OAuth access token as a bearer header.
	ShapeOAuth Shape = "oauth"
)

// Material is opaque credential data bound to a shape. It knows how to
// attach itself to an outbound request; nothing else reads the secret.
type Material struct {
	shape  Shape
	secret string
}

// NewMaterial wraps a raw secret for the given shape.
func NewMaterial(shape Shape, secret string) Material {
	return Material{shape: shape, secret: secret}
}

// Apply attaches the credential to the given header and query values
// according to its shape.
func (m Material) Apply(header http.Header, query url.Values) {
	switch m.shape {
	case ShapeAPIKey:
		header.Set("x-api-key", m.secret)
	case ShapeQueryKey:
		query.Set("key", m.secret)
	case ShapeBearer, ShapeOAuth:
		header.Set("Authorization", "Bearer "+m.secret)
	}
}

// Source resolves credential material for a provider. Implementations
// fail with a canonical AuthError when no material is available.
type Source interface {
	Resolve(provider string, shape Shape) (Material, error)
}

// StaticSource serves credentials from an in-memory map keyed by
// provider ID, falling back to LITELLM_<PROVIDER>_API_KEY environment
// variables. Populated from configuration at startup.
type StaticSource struct {
	secrets map[string]string
}

// NewStaticSource builds a source from provider ID to secret mappings.
func NewStaticSource(secrets map[string]string) *StaticSource {
	copied := make(map[string]string, len(secrets))
	for provider, secret := range secrets {
		copied[provider] = secret
	}

	return &StaticSource{secrets: copied}
}

func (s *StaticSource) Resolve(provider string, shape Shape) (Material, error) {
	if secret, ok := s.secrets[provider]; ok && secret != "" {
		return NewMaterial(shape, secret), nil
	}

	envKey := "LITELLM_" + strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
	if secret := os.Getenv(envKey); secret != "" {
		return NewMaterial(shape, secret), nil
	}

	return Material{}, canonical.Errorf(canonical.AuthError, "no credentials configured for provider %q", provider)
}
