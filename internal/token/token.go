// Package token manages the lifecycle of the Graph API bearer credential:
// validation, proactive refresh, interactive recovery and persistence. Every
// API-calling component obtains its credential through Manager; nothing else
// mutates the persisted record.
package token

import "time"

// Credential is a bearer credential together with its known expiry.
type Credential struct {
	Value string
	// ExpiresAt is nil when the expiry is unknown. An unknown expiry is
	// treated as non-expiring until validation proves otherwise.
	ExpiresAt *time.Time
}

// State describes what the manager currently believes about the cached
// credential.
type State string

const (
	StateUnknown      State = "unknown"
	StateValid        State = "valid"
	StateExpiringSoon State = "expiring_soon"
	StateExpired      State = "expired"
	StateInvalid      State = "invalid"
)

// Info is a read-only snapshot of the cached credential. The value is masked
// down to a short prefix.
type Info struct {
	Preview   string     `json:"token_preview"`
	Valid     bool       `json:"valid"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	State     State      `json:"state"`
	Identity  string     `json:"identity,omitempty"`
}

// maskToken keeps a short prefix of the credential for logs and snapshots.
func maskToken(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 12 {
		return value[:len(value)/2] + "..."
	}
	return value[:12] + "..."
}
