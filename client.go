package goSSO

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSSO/deserializer"
	"github.com/MrEthical07/goSSO/identity"
	internalaudit "github.com/MrEthical07/goSSO/internal/audit"
	"github.com/MrEthical07/goSSO/session"
	"github.com/sirupsen/logrus"
)

// Client turns provider payloads into identities and, when a session store is
// configured, keeps those identities in Redis-backed sessions. Client methods
// are safe for concurrent use.
type Client struct {
	config   Config
	registry *deserializer.Registry
	caches   map[string]*deserializer.Cache
	store    *session.Store
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	logger   logrus.FieldLogger
}

// Session is a stored login as seen by callers.
type Session struct {
	ID        string
	Provider  string
	Identity  identity.Identity
	CreatedAt time.Time
	ExpiresAt time.Time
}

func sessionFromStore(s *session.Session) *Session {
	return &Session{
		ID:        s.SessionID,
		Provider:  s.Provider,
		Identity:  s.Identity,
		CreatedAt: time.Unix(s.CreatedAt, 0),
		ExpiresAt: time.Unix(s.ExpiresAt, 0),
	}
}

// Close stops the audit dispatcher after flushing queued events.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.audit.Close()
}

// AuditDropped reports audit events dropped because the buffer was full.
func (c *Client) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}

// MetricsSnapshot returns the current metric values.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// Providers returns the registered provider names in sorted order.
func (c *Client) Providers() []string {
	if c == nil {
		return nil
	}
	return c.registry.Names()
}

// DefaultProvider returns the provider used for empty provider names.
func (c *Client) DefaultProvider() string {
	if c == nil {
		return ""
	}
	return c.registry.Default()
}

// CacheStats returns the conversion cache counters for provider, if that
// provider is cached.
func (c *Client) CacheStats(provider string) (deserializer.CacheStats, bool) {
	if c == nil {
		return deserializer.CacheStats{}, false
	}
	cache, ok := c.caches[c.resolveProvider(provider)]
	if !ok {
		return deserializer.CacheStats{}, false
	}
	return cache.Stats(), true
}

// SessionsEnabled reports whether Login and the other session operations are
// available.
func (c *Client) SessionsEnabled() bool {
	return c != nil && c.store != nil
}

func (c *Client) resolveProvider(provider string) string {
	if provider == "" {
		return c.registry.Default()
	}
	return provider
}

// Deserialize converts payload with the deserializer registered for provider.
// An empty provider selects the default provider.
//
// Failures are *deserializer.Error values carrying a Kind, or an error
// matching [ErrUnknownProvider]. Each call updates metrics and emits one audit
// event.
func (c *Client) Deserialize(ctx context.Context, provider, payload string) (identity.Identity, error) {
	if c == nil {
		return nil, ErrClientNotReady
	}
	name := c.resolveProvider(provider)

	d, err := c.registry.Get(name)
	if err != nil {
		c.metricInc(MetricUnknownProvider)
		c.logger.WithField("provider", provider).Debug("unknown sso provider")
		c.emitAudit(ctx, AuditEvent{
			EventType: auditEventConversion,
			Provider:  provider,
			Error:     auditErrUnknownProvider,
		})
		return nil, err
	}

	start := time.Now()
	ident, err := d.Deserialize(payload)
	c.metricObserve(MetricConversionLatency, time.Since(start))

	if err != nil {
		kind := deserializer.KindOf(err)
		c.metricInc(conversionFailureMetric(kind))

		fields := logrus.Fields{"provider": name, "kind": kind.String()}
		var derr *deserializer.Error
		if errors.As(err, &derr) && derr.Field != "" {
			fields["field"] = derr.Field
		}
		c.logger.WithFields(fields).WithError(err).Debug("identity conversion failed")

		event := AuditEvent{
			EventType: auditEventConversion,
			Provider:  name,
			Error:     kind.String(),
		}
		if derr != nil && derr.Field != "" {
			event.Metadata = map[string]string{"field": derr.Field}
		}
		c.emitAudit(ctx, event)
		return nil, err
	}

	c.metricInc(MetricConversionSuccess)
	c.emitAudit(ctx, AuditEvent{
		EventType: auditEventConversion,
		Provider:  name,
		UserID:    ident.ID(),
		Success:   true,
	})
	return ident, nil
}

// Login converts payload and stores the identity in a new session that lives
// for the configured session TTL.
func (c *Client) Login(ctx context.Context, provider, payload string) (*Session, error) {
	if c == nil {
		return nil, ErrClientNotReady
	}
	if c.store == nil {
		return nil, ErrSessionStoreDisabled
	}

	ident, err := c.Deserialize(ctx, provider, payload)
	if err != nil {
		return nil, err
	}

	name := c.resolveProvider(provider)
	stored, err := c.store.Create(ctx, name, ident, c.config.Session.TTL)
	if err != nil {
		c.emitAudit(ctx, AuditEvent{
			EventType: auditEventLogin,
			Provider:  name,
			UserID:    ident.ID(),
			Error:     auditErrStoreUnavailable,
		})
		return nil, c.storeError("login", err)
	}

	c.metricInc(MetricSessionCreated)
	c.emitAudit(ctx, AuditEvent{
		EventType: auditEventLogin,
		Provider:  name,
		UserID:    ident.ID(),
		SessionID: stored.SessionID,
		Success:   true,
	})
	return sessionFromStore(stored), nil
}

// Current returns the live session for sessionID. With sliding expiry the
// lookup renews the session.
func (c *Client) Current(ctx context.Context, sessionID string) (*Session, error) {
	if c == nil {
		return nil, ErrClientNotReady
	}
	if c.store == nil {
		return nil, ErrSessionStoreDisabled
	}

	stored, err := c.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrInvalidRecord) {
			if errors.Is(err, session.ErrInvalidRecord) {
				c.logger.WithError(err).Warn("discarding unreadable session record")
			}
			c.metricInc(MetricSessionMiss)
			return nil, ErrSessionNotFound
		}
		return nil, c.storeError("current", err)
	}

	c.metricInc(MetricSessionLookup)
	return sessionFromStore(stored), nil
}

// Logout deletes one session. Logging out a missing session succeeds.
func (c *Client) Logout(ctx context.Context, sessionID string) error {
	if c == nil {
		return ErrClientNotReady
	}
	if c.store == nil {
		return ErrSessionStoreDisabled
	}

	if err := c.store.Delete(ctx, sessionID); err != nil {
		c.emitAudit(ctx, AuditEvent{
			EventType: auditEventLogout,
			SessionID: sessionID,
			Error:     auditErrStoreUnavailable,
		})
		return c.storeError("logout", err)
	}

	c.metricInc(MetricLogout)
	c.emitAudit(ctx, AuditEvent{
		EventType: auditEventLogout,
		SessionID: sessionID,
		Success:   true,
	})
	return nil
}

// LogoutAll deletes every session of the identity userID and returns how many
// were removed.
func (c *Client) LogoutAll(ctx context.Context, userID string) (int, error) {
	if c == nil {
		return 0, ErrClientNotReady
	}
	if c.store == nil {
		return 0, ErrSessionStoreDisabled
	}

	removed, err := c.store.DeleteAllForIdentity(ctx, userID)
	if err != nil {
		c.emitAudit(ctx, AuditEvent{
			EventType: auditEventLogoutAll,
			UserID:    userID,
			Error:     auditErrStoreUnavailable,
		})
		return 0, c.storeError("logout_all", err)
	}

	c.metricInc(MetricLogoutAll)
	c.emitAudit(ctx, AuditEvent{
		EventType: auditEventLogoutAll,
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"removed": fmt.Sprint(removed)},
	})
	return removed, nil
}

// ActiveSessions returns the IDs of the live sessions of userID.
func (c *Client) ActiveSessions(ctx context.Context, userID string) ([]string, error) {
	if c == nil {
		return nil, ErrClientNotReady
	}
	if c.store == nil {
		return nil, ErrSessionStoreDisabled
	}

	ids, err := c.store.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return nil, c.storeError("active_sessions", err)
	}
	return ids, nil
}

// Ping checks the session store and returns its latency.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	if c == nil {
		return 0, ErrClientNotReady
	}
	if c.store == nil {
		return 0, ErrSessionStoreDisabled
	}
	d, err := c.store.Ping(ctx)
	if err != nil {
		return d, c.storeError("ping", err)
	}
	return d, nil
}

func (c *Client) storeError(op string, err error) error {
	if errors.Is(err, session.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	c.logger.WithFields(logrus.Fields{"op": op}).WithError(err).Warn("session store failure")
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func conversionFailureMetric(kind deserializer.Kind) MetricID {
	switch kind {
	case deserializer.KindMissingIdentifier:
		return MetricConversionMissingIdentifier
	case deserializer.KindTypeMismatch:
		return MetricConversionTypeMismatch
	case deserializer.KindUnverified:
		return MetricConversionUnverified
	default:
		return MetricConversionMalformed
	}
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

func (c *Client) metricObserve(id MetricID, d time.Duration) {
	if c == nil || c.metrics == nil || !c.metrics.LatencyEnabled() {
		return
	}
	c.metrics.Observe(id, d)
}
