package canonical

import "fmt"

// ErrorKind is the closed taxonomy of gateway error classifications.
// Every failure that crosses the handler boundary carries exactly one kind,
// so callers can branch programmatically (retry on RateLimited, fail fast
// on InvalidRequest) without parsing provider-specific payloads.
type ErrorKind string

const (
	AuthError             ErrorKind = "auth_error"
	RateLimited           ErrorKind = "rate_limited"
	InvalidRequest        ErrorKind = "invalid_request"
	ProviderUnavailable   ErrorKind = "provider_unavailable"
	UnsupportedCapability ErrorKind = "unsupported_capability"
	Timeout               ErrorKind = "timeout"
	Unknown               ErrorKind = "unknown"
)

// Error is the canonical error value returned from every failure path in
// the gateway core. ProviderCode carries the provider's native status or
// error code as an opaque passthrough; callers must not parse it.
type Error struct {
	Kind         ErrorKind `json:"kind"`
	Message      string    `json:"message"`
	ProviderCode string    `json:"provider_code,omitempty"`
}

func (e *Error) Error() string {
	if e.ProviderCode != "" {
		return fmt.Sprintf("%s: %s (provider code %s)", e.Kind, e.Message, e.ProviderCode)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Errorf constructs a canonical error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCode attaches a provider-native code to the error and returns it.
func (e *Error) WithCode(code string) *Error {
	e.ProviderCode = code
	return e
}

// KindOf reports the canonical kind of err. Non-canonical errors
// classify as Unknown; a nil error has no kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	if ce, ok := err.(*Error); ok {
		return ce.Kind
	}

	return Unknown
}

// AsError coerces err into a canonical error. Canonical errors pass
// through unchanged; anything else is wrapped under the given fallback
// kind so no raw error ever escapes the handler boundary.
func AsError(err error, fallback ErrorKind) *Error {
	if err == nil {
		return nil
	}

	if ce, ok := err.(*Error); ok {
		return ce
	}

	return &Error{Kind: fallback, Message: err.Error()}
}
