// Package gatewayerr defines the gateway's abstract error taxonomy: a flat,
// serializable error struct rather than a tree of wrapped sentinels, matching
// the teacher's flat event-struct style (protocol.ErrorEvent, voice.TTSEvent)
// instead of introducing a new wrapped-error idiom.
package gatewayerr

import "fmt"

type Kind string

const (
	KindInputValidation    Kind = "input_validation"
	KindPolicyDenied       Kind = "policy_denied"
	KindProviderTransient  Kind = "provider_transient"
	KindProviderAuth       Kind = "provider_auth"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindCancelled          Kind = "cancelled"
	KindInternal           Kind = "internal"
)

// Error is the single error shape surfaced across the gateway: transports
// translate it into their own wire format (an ErrorEvent frame on the
// WebSocket, an HTTP status + JSON body on the webhook/REST routes).
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string, retryable bool) *Error {
	return &Error{Kind: kind, Message: message, Retryable: retryable}
}

func Wrap(kind Kind, message string, retryable bool, cause error) *Error {
	return &Error{Kind: kind, Message: message, Retryable: retryable, Cause: cause}
}

// HTTPStatus maps a Kind to the status code its transports should surface.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInputValidation:
		return 400
	case KindPolicyDenied:
		return 403
	case KindProviderAuth:
		return 502
	case KindProviderTransient:
		return 503
	case KindBackendUnavailable:
		return 503
	case KindCancelled:
		return 499
	default:
		return 500
	}
}
