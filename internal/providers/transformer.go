package providers

import (
	"net/http"

	"github.com/stuagano/litellm/internal/canonical"
	"github.com/stuagano/litellm/internal/credentials"
	"github.com/stuagano/litellm/internal/transport"
)

// Canonical finish reason values shared by all transformers.
const (
	FinishStop   = "stop"
	FinishLength = "length"
	FinishFilter = "content_filter"
)

// Descriptor is the static capability record for one provider. Instances
// are built by transformer constructors and owned by the Registry for
// the life of the process; nothing mutates them after registration.
type Descriptor struct {
	ID              string                `json:"id"`
	Operations      []canonical.Operation `json:"operations"`
	CredentialShape credentials.Shape     `json:"credential_shape"`
	Endpoint        string                `json:"endpoint"`
	Streaming       bool                  `json:"streaming"`
}

// Supports reports whether the provider declares the given operation.
func (d Descriptor) Supports(op canonical.Operation) bool {
	for _, declared := range d.Operations {
		if declared == op {
			return true
		}
	}

	return false
}

// Transformer is the pure mapping layer for one provider: canonical
// request out to the provider's wire format, provider payloads back to
// canonical values. Implementations hold only immutable configuration
// (endpoint, project identifiers) and perform no I/O, so they are
// testable against fixed payloads.
type Transformer interface {
	Descriptor() Descriptor

	// ToProvider builds the provider wire request for a canonical request.
	// Fields the provider cannot express are either dropped (documented
	// per provider) or rejected with InvalidRequest when semantically
	// required. Credentials are not attached here; the handler applies
	// them after resolution.
	ToProvider(req *canonical.Request) (*transport.Request, error)

	// FromProvider maps a provider response or error document to a
	// canonical response or canonical error. Every provider error code
	// classifies into exactly one canonical kind; unmapped codes fall
	// back to the HTTP status class and finally to Unknown.
	FromProvider(op canonical.Operation, resp *transport.Response) (*canonical.Response, error)

	// TransformStream converts one streaming payload into zero or more
	// canonical response fragments, carrying per-stream bookkeeping in
	// state. Fragments preserve provider emission order.
	TransformStream(chunk []byte, state *StreamState) ([]canonical.Response, error)
}

// JobPoller is implemented by transformers whose provider supports
// fine-tune job status lookup. Callers detect support via type
// assertion; transformers without tuning simply omit the method.
type JobPoller interface {
	PollRequest(jobID string) (*transport.Request, error)
}

// StreamState tracks conversion state across the chunks of one
// streaming response. A fresh state is created per stream and never
// shared between calls.
type StreamState struct {
	MessageID string
	Model     string
	RoleSent  bool
	Usage     canonical.Usage
	UsageSeen bool
	Finished  bool
}

// statusKind classifies an HTTP status into a canonical error kind. Used
// as the fallback when a provider's own error code is absent from its
// mapping table.
func statusKind(status int) canonical.ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return canonical.AuthError
	case status == http.StatusTooManyRequests:
		return canonical.RateLimited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return canonical.Timeout
	case status >= 400 && status < 500:
		return canonical.InvalidRequest
	case status >= 500:
		return canonical.ProviderUnavailable
	default:
		return canonical.Unknown
	}
}
