package token

import "fmt"

// ValidationError is a transient failure to query the introspection endpoint
// (network error, timeout, malformed response). The prior cached state is
// kept; the caller may retry.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("token validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ExpiredCredentialError is the platform's authoritative signal that the
// credential is no longer usable (error code 190). It always triggers
// escalation, never a plain retry.
type ExpiredCredentialError struct {
	Code    int
	Subcode int
	Message string
}

func (e *ExpiredCredentialError) Error() string {
	return fmt.Sprintf("credential rejected by platform (code=%d subcode=%d): %s", e.Code, e.Subcode, e.Message)
}

// RefreshFailure classifies why a refresh did not produce a credential.
type RefreshFailure string

const (
	RefreshMissingCredentials RefreshFailure = "missing_credentials"
	RefreshExchangeFailed     RefreshFailure = "exchange_failed"
)

type RefreshError struct {
	Reason RefreshFailure
	Err    error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token refresh failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("token refresh failed (%s)", e.Reason)
}

func (e *RefreshError) Unwrap() error { return e.Err }

// ExtractionFailure classifies why the interactive fallback did not produce a
// credential.
type ExtractionFailure string

const (
	ExtractionTimeout            ExtractionFailure = "timeout"
	ExtractionCancelled          ExtractionFailure = "cancelled"
	ExtractionSurfaceUnavailable ExtractionFailure = "surface_unavailable"
)

type ExtractionError struct {
	Reason ExtractionFailure
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token extraction failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("token extraction failed (%s)", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StoreError reports a persistence failure. A refresh that cannot be
// persisted is not a success: a process restart must not lose the improved
// credential.
type StoreError struct {
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("credential store failed: %v", e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
