package reliability

import (
	"errors"
	"fmt"
)

// Kind buckets pipeline failures so the turn controller can pick the right
// per-step fallback instead of inspecting provider-specific errors.
type Kind string

const (
	KindTransientProvider Kind = "transient_provider"
	KindProviderContract  Kind = "provider_contract"
	KindAudioFormat       Kind = "audio_format"
	KindSessionStore      Kind = "session_store"
	KindGatewayProtocol   Kind = "gateway_protocol"
	KindDatabase          Kind = "database"
	KindTerminalCall      Kind = "terminal_call"
)

// Error carries a failure kind plus the component that produced it, which is
// also the label pair used by the errors_total metric.
type Error struct {
	Kind      Kind
	Component string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Component, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with a kind and component.
func Wrap(kind Kind, component string, err error) *Error {
	return &Error{Kind: kind, Component: component, Err: err}
}

// Transient tags a provider network/5xx failure.
func Transient(component string, err error) *Error {
	return Wrap(KindTransientProvider, component, err)
}

// KindOf extracts the failure kind, defaulting to transient so unknown
// errors get the forgiving fallback path.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindTransientProvider
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
