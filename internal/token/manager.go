package token

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"fanpage-agent/internal/config"
)

const (
	// RefreshThreshold is how close to expiry a credential may get before a
	// proactive refresh is attempted even though it still validates.
	RefreshThreshold = time.Hour
	// RevalidateInterval caps how long a successful validation is trusted
	// without asking the platform again.
	RevalidateInterval = 5 * time.Minute

	// DefaultExtractTimeout bounds the interactive prompt.
	DefaultExtractTimeout = 3 * time.Minute
)

// RecordStore persists the credential record. Save must be all-or-nothing.
type RecordStore interface {
	Load() (config.Record, error)
	Save(config.Record) error
}

// Manager owns the cached credential and the persisted record. It is the only
// writer of either; all mutation happens under the single-flight guard, so at
// most one escalation (validate, refresh, interactive extraction) is in flight
// per process and concurrent callers share its outcome.
type Manager struct {
	store          RecordStore
	validator      Validator
	refresher      Refresher
	extractor      Extractor
	clock          clockwork.Clock
	log            zerolog.Logger
	extractTimeout time.Duration

	group singleflight.Group

	mu            sync.RWMutex
	record        config.Record
	state         State
	lastValidated time.Time
	identity      string
}

type ManagerConfig struct {
	Store     RecordStore
	Validator Validator
	Refresher Refresher
	// Extractor is optional; nil means no interactive surface is available.
	Extractor Extractor
	Clock     clockwork.Clock
	Logger    zerolog.Logger
	// InitialRecord is the record loaded at startup, with environment-level
	// values already merged in (the persisted record wins, the environment
	// only fills empty fields).
	InitialRecord  config.Record
	ExtractTimeout time.Duration
}

func NewManager(cfg ManagerConfig) *Manager {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	timeout := cfg.ExtractTimeout
	if timeout == 0 {
		timeout = DefaultExtractTimeout
	}
	return &Manager{
		store:          cfg.Store,
		validator:      cfg.Validator,
		refresher:      cfg.Refresher,
		extractor:      cfg.Extractor,
		clock:          clock,
		log:            cfg.Logger.With().Str("component", "token_manager").Logger(),
		extractTimeout: timeout,
		record:         cfg.InitialRecord,
		state:          StateUnknown,
	}
}

// GetValidToken returns a credential currently believed valid, escalating
// through validation, OAuth refresh and interactive extraction as needed.
// Successful escalations persist the record before returning, so a crash
// right after return never loses the new credential.
func (m *Manager) GetValidToken(ctx context.Context, forceRefresh bool) (Credential, error) {
	if !forceRefresh {
		if cred, ok := m.cachedValid(); ok {
			return cred, nil
		}
	}

	v, err, shared := m.group.Do("credential", func() (interface{}, error) {
		cred, err := m.escalate(ctx, forceRefresh)
		if err != nil {
			return nil, err
		}
		return cred, nil
	})
	if err != nil {
		return Credential{}, err
	}
	if shared {
		m.log.Debug().Msg("joined in-flight escalation")
	}
	return v.(Credential), nil
}

// Token is a convenience wrapper for consumers that only need the bearer
// string.
func (m *Manager) Token(ctx context.Context) (string, error) {
	cred, err := m.GetValidToken(ctx, false)
	if err != nil {
		return "", err
	}
	return cred.Value, nil
}

// ForceRefresh triggers one escalation regardless of the cached state.
func (m *Manager) ForceRefresh(ctx context.Context) (Credential, error) {
	return m.GetValidToken(ctx, true)
}

// GetTokenInfo returns a read-only snapshot of the cached credential. It
// never performs I/O and never triggers a refresh.
func (m *Manager) GetTokenInfo() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := Info{
		Preview:   maskToken(m.record.AccessToken),
		State:     m.state,
		ExpiresAt: m.record.ExpiresAt,
		Identity:  m.identity,
	}

	// Apply the time-based transitions without touching the network.
	if m.state == StateValid || m.state == StateExpiringSoon {
		now := m.clock.Now()
		switch {
		case m.record.ExpiresAt != nil && !m.record.ExpiresAt.After(now):
			info.State = StateExpired
		case expiringSoon(m.record.ExpiresAt, now):
			info.State = StateExpiringSoon
		default:
			info.State = StateValid
		}
	}

	info.Valid = info.State == StateValid || info.State == StateExpiringSoon
	return info
}

// cachedValid is the lock-free-of-I/O fast path: a recently validated,
// not-expiring credential is served as is.
func (m *Manager) cachedValid() (Credential, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.state != StateValid || m.record.AccessToken == "" {
		return Credential{}, false
	}
	now := m.clock.Now()
	if now.Sub(m.lastValidated) >= RevalidateInterval {
		return Credential{}, false
	}
	if expiringSoon(m.record.ExpiresAt, now) {
		return Credential{}, false
	}
	return Credential{Value: m.record.AccessToken, ExpiresAt: m.record.ExpiresAt}, true
}

// escalate runs under the single-flight guard.
func (m *Manager) escalate(ctx context.Context, force bool) (Credential, error) {
	// Another caller may have finished an escalation while we waited.
	if !force {
		if cred, ok := m.cachedValid(); ok {
			return cred, nil
		}
	}

	rec := m.snapshotRecord()

	if rec.AccessToken == "" {
		m.log.Warn().Msg("no access token configured, asking the operator for one")
		return m.extract(ctx, rec)
	}

	res, err := m.validator.Validate(ctx, rec.AccessToken)
	var expired *ExpiredCredentialError
	switch {
	case err == nil:
		if res.ExpiresAt != nil {
			rec.ExpiresAt = res.ExpiresAt
		}
		if !expiringSoon(rec.ExpiresAt, m.clock.Now()) {
			m.setValidated(rec, res.Identity)
			return Credential{Value: rec.AccessToken, ExpiresAt: rec.ExpiresAt}, nil
		}
		m.log.Info().
			Str("token", maskToken(rec.AccessToken)).
			Msg("token expiring soon, attempting proactive refresh")
	case errors.As(err, &expired):
		m.setState(StateInvalid)
		m.log.Warn().
			Int("code", expired.Code).
			Int("subcode", expired.Subcode).
			Msg("platform reports credential expired, escalating")
	default:
		// Transient validation failure: keep the prior cached state, let the
		// caller retry.
		return Credential{}, err
	}

	if rec.HasAppCredentials() {
		cred, rerr := m.refresher.Refresh(ctx, rec.AccessToken, rec.AppID, rec.AppSecret)
		if rerr == nil {
			m.log.Info().Str("token", maskToken(cred.Value)).Msg("token refreshed via OAuth exchange")
			return m.commit(rec, cred)
		}
		m.log.Warn().Err(rerr).Msg("OAuth exchange failed")
	} else {
		m.log.Debug().Msg("app id/secret not configured, skipping OAuth exchange")
	}

	if expired == nil {
		// Still validates, just inside the refresh window. Keep serving it
		// rather than blocking callers on a human; the next call retries the
		// exchange.
		m.setValidated(rec, res.Identity)
		return Credential{Value: rec.AccessToken, ExpiresAt: rec.ExpiresAt}, nil
	}

	return m.extract(ctx, rec)
}

// extract runs the interactive fallback and persists its result.
func (m *Manager) extract(ctx context.Context, rec config.Record) (Credential, error) {
	if m.extractor == nil {
		return Credential{}, &ExtractionError{
			Reason: ExtractionSurfaceUnavailable,
			Err:    errors.New("no interactive surface configured"),
		}
	}

	ectx := ctx
	if m.extractTimeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, m.extractTimeout)
		defer cancel()
	}

	value, err := m.extractor.Extract(ectx)
	if err != nil {
		var xerr *ExtractionError
		if errors.As(err, &xerr) {
			return Credential{}, err
		}
		return Credential{}, &ExtractionError{Reason: ExtractionSurfaceUnavailable, Err: err}
	}

	cred := Credential{Value: value}
	// Best-effort introspection so the new token's expiry is known; a
	// transient failure here keeps the token with an unknown expiry.
	if res, verr := m.validator.Validate(ctx, value); verr == nil {
		cred.ExpiresAt = res.ExpiresAt
	}

	m.log.Info().Str("token", maskToken(value)).Msg("token supplied interactively")
	return m.commit(rec, cred)
}

// commit persists the record, then publishes it to the cache. Persistence
// happens-before any caller observes the new credential.
func (m *Manager) commit(rec config.Record, cred Credential) (Credential, error) {
	rec.AccessToken = cred.Value
	rec.ExpiresAt = cred.ExpiresAt

	if err := m.store.Save(rec); err != nil {
		// An unpersisted refresh must not be reported as success: a restart
		// would silently lose the improved credential.
		m.mu.Lock()
		m.state = StateUnknown
		m.lastValidated = time.Time{}
		m.mu.Unlock()
		return Credential{}, &StoreError{Err: err}
	}

	m.mu.Lock()
	m.record = rec
	m.state = StateValid
	m.lastValidated = m.clock.Now()
	m.mu.Unlock()
	return cred, nil
}

func (m *Manager) setValidated(rec config.Record, identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = rec
	m.lastValidated = m.clock.Now()
	m.identity = identity
	if expiringSoon(rec.ExpiresAt, m.clock.Now()) {
		m.state = StateExpiringSoon
	} else {
		m.state = StateValid
	}
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *Manager) snapshotRecord() config.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record
}

func expiringSoon(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return false
	}
	return expiresAt.Sub(now) < RefreshThreshold
}
