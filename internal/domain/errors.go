package domain

import "fmt"

// ConfigError reports a missing or unusable required configuration field.
// It is fatal: a client must refuse to bind rather than start partially
// configured.
type ConfigError struct {
	Adapter string
	Field   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: required config %q not provided", e.Adapter, e.Field)
}

// AuthError reports a webhook request that failed authenticity
// verification. It is scoped to the request; other requests are unaffected.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return e.Reason }

// ValidationError reports an outbound message that violates the message
// contract. The send fails before any transport I/O is attempted.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// TransportError reports a failed platform call, either at the network
// layer or as an in-band error payload in the platform's response.
type TransportError struct {
	Platform string
	Detail   string
	Err      error
}

func (e *TransportError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Platform, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Platform, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DispatchError reports an event that arrived with no registered handler
// and no application-provided fallback. It is surfaced to the external
// caller instead of silently acknowledging the event.
type DispatchError struct {
	Category string
	Event    string
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("no %s handlers configured", e.Category)
}
