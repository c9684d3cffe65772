// Package otp manages short numeric one-time codes scoped to (session, identity).
//
// A code is stored with a TTL in a Cache and consumed on successful
// verification. A separate resend counter with a longer TTL bounds how many
// times a code can be regenerated for the same key.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"rollcall/internal/otp/cache"
	"rollcall/internal/platform/metrics"
	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/audit"
	"rollcall/pkg/platform/middleware/requesttime"
)

type Manager struct {
	cache   cache.Cache
	config  Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	random  io.Reader

	keyLocks *keyedMutex
	batchMu  sync.Mutex
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		m.config = cfg
	}
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mx
	}
}

// WithRandom replaces the crypto/rand source, for deterministic tests.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) {
		m.random = r
	}
}

func New(c cache.Cache, opts ...Option) (*Manager, error) {
	if c == nil {
		return nil, errors.New("otp cache is required")
	}
	m := &Manager{
		cache:    c,
		config:   DefaultConfig(),
		random:   rand.Reader,
		keyLocks: newKeyedMutex(64),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.config.Length <= 0 {
		return nil, errors.New("otp length must be positive")
	}
	if m.config.TTL <= 0 {
		return nil, errors.New("otp ttl must be positive")
	}
	return m, nil
}

// Generate returns a uniformly random fixed-width numeric code. Bytes >= 250
// are rejected so every digit is equally likely.
func (m *Manager) Generate() (string, error) {
	code := make([]byte, 0, m.config.Length)
	var b [16]byte
	for len(code) < m.config.Length {
		if _, err := io.ReadFull(m.random, b[:]); err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
		}
		for _, v := range b {
			if v >= 250 {
				continue
			}
			code = append(code, '0'+v%10)
			if len(code) == m.config.Length {
				break
			}
		}
	}
	return string(code), nil
}

// Issue generates and stores a fresh code for one identity.
func (m *Manager) Issue(ctx context.Context, sessionID, identityID string) (*Issued, error) {
	code, err := m.Generate()
	if err != nil {
		return nil, err
	}
	if err := m.Store(ctx, sessionID, identityID, code, m.config.TTL); err != nil {
		return nil, err
	}
	audit.Log(ctx, m.logger, audit.EventOTPIssued,
		"session_id", sessionID,
		"identity_id", identityID,
	)
	return &Issued{
		SessionID:  sessionID,
		IdentityID: identityID,
		Code:       code,
		ExpiresAt:  requesttime.Now(ctx).Add(m.config.TTL),
	}, nil
}

// IssueBatch generates one code per identity, regenerating up to
// BatchRetryLimit times to avoid a duplicate within the batch. Past the bound
// the duplicate is accepted and counted in BatchResult.Duplicates.
//
// The whole batch runs under one lock so two concurrent batches never
// interleave their writes for the same identities.
func (m *Manager) IssueBatch(ctx context.Context, sessionID string, identityIDs []string) (*BatchResult, error) {
	if sessionID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "session id is required")
	}

	m.batchMu.Lock()
	defer m.batchMu.Unlock()

	result := &BatchResult{
		Codes:     make(map[string]string, len(identityIDs)),
		ExpiresAt: requesttime.Now(ctx).Add(m.config.TTL),
	}
	used := make(map[string]struct{}, len(identityIDs))

	for _, identityID := range identityIDs {
		if identityID == "" {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "identity id is required")
		}
		if _, seen := result.Codes[identityID]; seen {
			continue
		}
		code, err := m.Generate()
		if err != nil {
			return nil, err
		}
		for attempts := 0; attempts < m.config.BatchRetryLimit; attempts++ {
			if _, dup := used[code]; !dup {
				break
			}
			if code, err = m.Generate(); err != nil {
				return nil, err
			}
		}
		if _, dup := used[code]; dup {
			result.Duplicates++
		}
		used[code] = struct{}{}

		if err := m.Store(ctx, sessionID, identityID, code, m.config.TTL); err != nil {
			return nil, err
		}
		result.Codes[identityID] = code
	}

	audit.Log(ctx, m.logger, audit.EventOTPBatchIssued,
		"session_id", sessionID,
		"count", len(result.Codes),
		"duplicates", result.Duplicates,
	)
	return result, nil
}

// Store overwrites any code for the key and resets its resend budget.
func (m *Manager) Store(ctx context.Context, sessionID, identityID, code string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.config.TTL
	}
	unlock := m.keyLocks.lock(resendKey(sessionID, identityID))
	defer unlock()

	if err := m.cache.Set(ctx, codeKey(sessionID, identityID), code, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store code")
	}
	if err := m.cache.Set(ctx, resendKey(sessionID, identityID), "0", m.config.ResendCounterTTL()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset resend counter")
	}
	m.metrics.IncrementOTPIssued(1)
	return nil
}

// Verify compares candidate with the live code. It does not consume the code;
// callers invalidate after the rest of the verification succeeds.
func (m *Manager) Verify(ctx context.Context, sessionID, identityID, candidate string) (*VerifyResult, error) {
	if !m.wellFormed(candidate) {
		return &VerifyResult{
			Malformed: true,
			Message:   fmt.Sprintf("code must be %d digits", m.config.Length),
		}, nil
	}

	stored, ok, err := m.cache.Get(ctx, codeKey(sessionID, identityID))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read code")
	}
	if !ok {
		return &VerifyResult{Expired: true, Message: "code has expired or was not issued"}, nil
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) != 1 {
		return &VerifyResult{Message: "invalid code"}, nil
	}
	return &VerifyResult{Valid: true, Message: "code verified"}, nil
}

// Resend regenerates the code if the key's budget allows it. The budget is
// reserved with one atomic cache call before the new code is written, so
// managers sharing a cache cannot exceed it together; a failure after the
// reservation still spends it. The per-key lock keeps the returned code and
// the stored code in step within this process.
func (m *Manager) Resend(ctx context.Context, sessionID, identityID string) (*ResendResult, error) {
	rKey := resendKey(sessionID, identityID)
	unlock := m.keyLocks.lock(rKey)
	defer unlock()

	used, accepted, err := m.cache.IncrementBelow(ctx, rKey, m.config.MaxResends, m.config.ResendCounterTTL())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update resend counter")
	}
	if !accepted {
		m.metrics.IncrementResendRejected()
		audit.Log(ctx, m.logger, audit.EventOTPResendRejected,
			"session_id", sessionID,
			"identity_id", identityID,
		)
		return &ResendResult{
			Accepted: false,
			Message:  "maximum resend attempts reached",
		}, nil
	}

	code, err := m.Generate()
	if err != nil {
		return nil, err
	}
	if err := m.cache.Set(ctx, codeKey(sessionID, identityID), code, m.config.TTL); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store code")
	}
	m.metrics.IncrementOTPIssued(1)

	remaining := m.config.MaxResends - used
	audit.Log(ctx, m.logger, audit.EventOTPResent,
		"session_id", sessionID,
		"identity_id", identityID,
		"remaining", remaining,
	)
	return &ResendResult{
		Accepted:  true,
		Remaining: remaining,
		ExpiresAt: requesttime.Now(ctx).Add(m.config.TTL),
		Message:   fmt.Sprintf("new code generated, %d resend(s) remaining", remaining),
		Code:      code,
	}, nil
}

// ResendRemaining reports the key's resend budget without consuming it.
func (m *Manager) ResendRemaining(ctx context.Context, sessionID, identityID string) (int, error) {
	used, err := m.resendCount(ctx, resendKey(sessionID, identityID))
	if err != nil {
		return 0, err
	}
	return max(0, m.config.MaxResends-used), nil
}

// Invalidate consumes the code after a successful verification.
func (m *Manager) Invalidate(ctx context.Context, sessionID, identityID string) error {
	if err := m.cache.Delete(ctx, codeKey(sessionID, identityID)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to invalidate code")
	}
	return nil
}

// RemainingTTL returns whole seconds until the code expires, or MissingTTL.
func (m *Manager) RemainingTTL(ctx context.Context, sessionID, identityID string) (int, error) {
	d, ok, err := m.cache.TTL(ctx, codeKey(sessionID, identityID))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read code ttl")
	}
	if !ok {
		return MissingTTL, nil
	}
	return int(d / time.Second), nil
}

func (m *Manager) resendCount(ctx context.Context, key string) (int, error) {
	raw, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read resend counter")
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		// A corrupt counter is treated as exhausted.
		return m.config.MaxResends, nil
	}
	return n, nil
}

func (m *Manager) wellFormed(candidate string) bool {
	if len(candidate) != m.config.Length {
		return false
	}
	for i := 0; i < len(candidate); i++ {
		if candidate[i] < '0' || candidate[i] > '9' {
			return false
		}
	}
	return true
}
