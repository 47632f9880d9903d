package goSSO

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrEthical07/goSSO/deserializer"
	"github.com/MrEthical07/goSSO/identity"
	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

const (
	testJWTSecret = "0123456789abcdef0123456789abcdef"
	alicePayload  = `{"uid":"u123","name":"Alice","email":"a@x.com"}`
)

func testClientConfig() Config {
	cfg := DefaultConfig()
	cfg.DefaultProvider = "corp"
	cfg.Providers = []ProviderConfig{
		{Name: "corp", Format: FormatJSON, IDField: "uid", Required: map[string]string{"email": "string"}},
		{Name: "cas", Format: FormatCAS},
		{Name: "idp", Format: FormatJWT, JWT: JWTConfig{Method: "hs256", Secret: testJWTSecret, Issuer: "iss"}},
	}
	cfg.Session.Enabled = true
	cfg.Session.TTL = time.Hour
	cfg.Cache.Enabled = true
	cfg.Cache.Size = 16
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 128
	cfg.Audit.DropIfFull = false
	cfg.Metrics.Enabled = true
	cfg.Metrics.LatencyHistograms = true
	return cfg
}

type clientHarness struct {
	client *Client
	mr     *miniredis.Miniredis
	sink   *ChannelSink
	hook   *logtest.Hook
}

func newClientHarness(t *testing.T, cfg Config) *clientHarness {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	sink := NewChannelSink(256)
	client, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAuditSink(sink).
		WithLogger(logger).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &clientHarness{client: client, mr: mr, sink: sink, hook: hook}
}

// drainAudit closes the client and returns every event it emitted.
func (h *clientHarness) drainAudit() []AuditEvent {
	h.client.Close()
	var events []AuditEvent
	for {
		select {
		case e := <-h.sink.Events():
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestDeserializeJSONProvider(t *testing.T) {
	h := newClientHarness(t, testClientConfig())

	ident, err := h.client.Deserialize(context.Background(), "corp", alicePayload)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if ident.ID() != "u123" {
		t.Fatalf("expected u123, got %q", ident.ID())
	}
	if v, ok := ident.Property("name"); !ok || v.String() != "Alice" {
		t.Fatalf("unexpected name %v", v)
	}
	if v, ok := ident.Property("email"); !ok || v.String() != "a@x.com" {
		t.Fatalf("unexpected email %v", v)
	}
	if _, ok := ident.Property("uid"); ok {
		t.Fatal("id field must not be an attribute")
	}
	names := ident.PropertyNames()
	slices.Sort(names)
	if !slices.Equal(names, []string{"email", "name"}) {
		t.Fatalf("unexpected property names %v", names)
	}

	// Empty provider selects the default.
	again, err := h.client.Deserialize(context.Background(), "", alicePayload)
	if err != nil {
		t.Fatalf("deserialize default: %v", err)
	}
	if !identity.Equal(ident, again) {
		t.Fatal("expected identical identities for identical payloads")
	}

	snap := h.client.MetricsSnapshot()
	if snap.Counters[MetricConversionSuccess] != 2 {
		t.Fatalf("expected 2 successes, got %d", snap.Counters[MetricConversionSuccess])
	}
	var observed uint64
	for _, v := range snap.Histograms[MetricConversionLatency] {
		observed += v
	}
	if observed != 2 {
		t.Fatalf("expected 2 latency observations, got %d", observed)
	}

	stats, ok := h.client.CacheStats("corp")
	if !ok || stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected cache stats %+v (cached=%v)", stats, ok)
	}

	events := h.drainAudit()
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	for _, e := range events {
		if e.EventType != auditEventConversion || !e.Success || e.UserID != "u123" || e.Provider != "corp" {
			t.Fatalf("unexpected audit event %+v", e)
		}
		if e.Timestamp.IsZero() {
			t.Fatal("expected audit timestamp")
		}
	}
}

func TestDeserializeFailureKinds(t *testing.T) {
	h := newClientHarness(t, testClientConfig())
	ctx := context.Background()

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "iss": "iss"}).
		SignedString([]byte("wrong-secret-wrong-secret-wrong!"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	cases := []struct {
		name     string
		provider string
		payload  string
		want     error
		kind     deserializer.Kind
		metric   MetricID
	}{
		{"malformed json", "corp", `{"uid":`, deserializer.ErrMalformedPayload, deserializer.KindMalformedPayload, MetricConversionMalformed},
		{"missing id", "corp", `{"name":"Alice","email":"a@x.com"}`, deserializer.ErrMissingIdentifier, deserializer.KindMissingIdentifier, MetricConversionMissingIdentifier},
		{"wrong email kind", "corp", `{"uid":"u1","email":5}`, deserializer.ErrTypeMismatch, deserializer.KindTypeMismatch, MetricConversionTypeMismatch},
		{"cas failure", "cas", `<serviceResponse><authenticationFailure code="INVALID_TICKET">no</authenticationFailure></serviceResponse>`, deserializer.ErrMissingIdentifier, deserializer.KindMissingIdentifier, MetricConversionMissingIdentifier},
		{"forged jwt", "idp", forged, deserializer.ErrUnverified, deserializer.KindUnverified, MetricConversionUnverified},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := h.client.MetricsSnapshot().Counters[tc.metric]

			ident, err := h.client.Deserialize(ctx, tc.provider, tc.payload)
			if ident != nil {
				t.Fatal("expected no identity on failure")
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got := deserializer.KindOf(err); got != tc.kind {
				t.Fatalf("expected kind %v, got %v", tc.kind, got)
			}
			if after := h.client.MetricsSnapshot().Counters[tc.metric]; after != before+1 {
				t.Fatalf("expected metric %d incremented, got %d -> %d", tc.metric, before, after)
			}
		})
	}

	var debugEntries int
	for _, entry := range h.hook.AllEntries() {
		if entry.Level == logrus.DebugLevel && entry.Message == "identity conversion failed" {
			debugEntries++
			if _, ok := entry.Data["kind"]; !ok {
				t.Fatalf("expected kind field in log entry %+v", entry.Data)
			}
		}
	}
	if debugEntries != len(cases) {
		t.Fatalf("expected %d debug entries, got %d", len(cases), debugEntries)
	}

	events := h.drainAudit()
	if len(events) != len(cases) {
		t.Fatalf("expected %d audit events, got %d", len(cases), len(events))
	}
	for _, e := range events {
		if e.Success || e.Error == "" {
			t.Fatalf("expected failed audit event, got %+v", e)
		}
	}
	if events[2].Metadata["field"] != "email" {
		t.Fatalf("expected offending field in metadata, got %+v", events[2].Metadata)
	}
}

func TestDeserializeUnknownProvider(t *testing.T) {
	h := newClientHarness(t, testClientConfig())

	_, err := h.client.Deserialize(context.Background(), "okta", alicePayload)
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	if deserializer.KindOf(err) != deserializer.KindUnknown {
		t.Fatal("unknown provider is not a conversion failure")
	}
	if h.client.MetricsSnapshot().Counters[MetricUnknownProvider] != 1 {
		t.Fatal("expected unknown provider metric")
	}

	events := h.drainAudit()
	if len(events) != 1 || events[0].Error != auditErrUnknownProvider || events[0].Provider != "okta" {
		t.Fatalf("unexpected audit events %+v", events)
	}
}

func TestDeserializeJWTProvider(t *testing.T) {
	h := newClientHarness(t, testClientConfig())

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "u9",
		"iss":   "iss",
		"email": "u9@x.com",
	}).SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ident, err := h.client.Deserialize(context.Background(), "idp", tok)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if ident.ID() != "u9" {
		t.Fatalf("expected u9, got %q", ident.ID())
	}
	if _, ok := h.client.CacheStats("idp"); !ok {
		t.Fatal("expected jwt provider without time validation to be cached")
	}
}

func TestLoginCurrentLogout(t *testing.T) {
	h := newClientHarness(t, testClientConfig())
	ctx := context.Background()

	sess, err := h.client.Login(ctx, "", alicePayload)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if sess.ID == "" || sess.Provider != "corp" || sess.Identity.ID() != "u123" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if got := sess.ExpiresAt.Sub(sess.CreatedAt); got != time.Hour {
		t.Fatalf("expected 1h lifetime, got %v", got)
	}

	current, err := h.client.Current(ctx, sess.ID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if !identity.Equal(current.Identity, sess.Identity) {
		t.Fatal("stored identity differs from login identity")
	}

	ids, err := h.client.ActiveSessions(ctx, "u123")
	if err != nil || !slices.Equal(ids, []string{sess.ID}) {
		t.Fatalf("unexpected active sessions %v, err=%v", ids, err)
	}

	if err := h.client.Logout(ctx, sess.ID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := h.client.Logout(ctx, sess.ID); err != nil {
		t.Fatalf("second logout must succeed: %v", err)
	}
	if _, err := h.client.Current(ctx, sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	snap := h.client.MetricsSnapshot()
	if snap.Counters[MetricSessionCreated] != 1 ||
		snap.Counters[MetricSessionLookup] != 1 ||
		snap.Counters[MetricSessionMiss] != 1 ||
		snap.Counters[MetricLogout] != 2 {
		t.Fatalf("unexpected session metrics %+v", snap.Counters)
	}

	var types []string
	for _, e := range h.drainAudit() {
		types = append(types, e.EventType)
	}
	want := []string{auditEventConversion, auditEventLogin, auditEventLogout, auditEventLogout}
	if !slices.Equal(types, want) {
		t.Fatalf("unexpected audit sequence %v", types)
	}
}

func TestLoginFailsOnBadPayload(t *testing.T) {
	h := newClientHarness(t, testClientConfig())

	if _, err := h.client.Login(context.Background(), "corp", `{"email":"a@x.com"}`); !errors.Is(err, deserializer.ErrMissingIdentifier) {
		t.Fatalf("expected missing identifier, got %v", err)
	}
	if n := len(h.mr.Keys()); n != 0 {
		t.Fatalf("expected nothing stored, got %d keys", n)
	}
}

func TestLogoutAll(t *testing.T) {
	h := newClientHarness(t, testClientConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := h.client.Login(ctx, "corp", alicePayload); err != nil {
			t.Fatalf("login %d: %v", i, err)
		}
	}
	other, err := h.client.Login(ctx, "corp", `{"uid":"u456","email":"b@x.com"}`)
	if err != nil {
		t.Fatalf("login other: %v", err)
	}

	removed, err := h.client.LogoutAll(ctx, "u123")
	if err != nil {
		t.Fatalf("logout all: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if ids, _ := h.client.ActiveSessions(ctx, "u123"); len(ids) != 0 {
		t.Fatalf("expected no sessions left, got %v", ids)
	}
	if _, err := h.client.Current(ctx, other.ID); err != nil {
		t.Fatalf("other identity must keep its session: %v", err)
	}

	events := h.drainAudit()
	last := events[len(events)-1]
	if last.EventType != auditEventLogoutAll || last.Metadata["removed"] != "3" {
		t.Fatalf("unexpected logout-all audit event %+v", last)
	}
}

func TestSessionOperationsRequireStore(t *testing.T) {
	cfg := testClientConfig()
	cfg.Session.Enabled = false

	client, err := New().WithConfig(cfg).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer client.Close()
	ctx := context.Background()

	if client.SessionsEnabled() {
		t.Fatal("expected sessions disabled")
	}
	if _, err := client.Login(ctx, "corp", alicePayload); !errors.Is(err, ErrSessionStoreDisabled) {
		t.Fatalf("login: expected ErrSessionStoreDisabled, got %v", err)
	}
	if _, err := client.Current(ctx, "x"); !errors.Is(err, ErrSessionStoreDisabled) {
		t.Fatalf("current: expected ErrSessionStoreDisabled, got %v", err)
	}
	if err := client.Logout(ctx, "x"); !errors.Is(err, ErrSessionStoreDisabled) {
		t.Fatalf("logout: expected ErrSessionStoreDisabled, got %v", err)
	}
	if _, err := client.LogoutAll(ctx, "x"); !errors.Is(err, ErrSessionStoreDisabled) {
		t.Fatalf("logout all: expected ErrSessionStoreDisabled, got %v", err)
	}
	if _, err := client.Ping(ctx); !errors.Is(err, ErrSessionStoreDisabled) {
		t.Fatalf("ping: expected ErrSessionStoreDisabled, got %v", err)
	}

	// Conversion works without a store.
	if _, err := client.Deserialize(ctx, "corp", alicePayload); err != nil {
		t.Fatalf("deserialize: %v", err)
	}
}

func TestStoreUnavailable(t *testing.T) {
	h := newClientHarness(t, testClientConfig())
	ctx := context.Background()

	if _, err := h.client.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	h.mr.Close()

	if _, err := h.client.Login(ctx, "corp", alicePayload); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := h.client.Current(ctx, "sid"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	var warned bool
	for _, entry := range h.hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "session store failure" {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected store failure to be logged")
	}
}

func TestCorruptSessionIsReportedAsMissing(t *testing.T) {
	h := newClientHarness(t, testClientConfig())

	if err := h.mr.Set("sso:s:broken", "\x01\x09garbage"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := h.client.Current(context.Background(), "broken"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestCustomDeserializer(t *testing.T) {
	cfg := DefaultConfig()
	custom := deserializer.Func(func(payload string) (identity.Identity, error) {
		if payload == "" {
			return nil, deserializer.Malformed(errors.New("empty"))
		}
		return identity.New(payload, nil)
	})

	client, err := New().WithConfig(cfg).WithDeserializer("echo", custom).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer client.Close()

	if client.DefaultProvider() != "echo" {
		t.Fatalf("expected sole provider as default, got %q", client.DefaultProvider())
	}
	ident, err := client.Deserialize(context.Background(), "", "u77")
	if err != nil || ident.ID() != "u77" {
		t.Fatalf("unexpected result %v, %v", ident, err)
	}
	if _, ok := client.CacheStats("echo"); ok {
		t.Fatal("custom deserializers are not cached")
	}
}

func TestNilClient(t *testing.T) {
	var c *Client
	ctx := context.Background()

	if _, err := c.Deserialize(ctx, "corp", alicePayload); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
	if _, err := c.Login(ctx, "corp", alicePayload); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
	if c.Providers() != nil || c.AuditDropped() != 0 || c.SessionsEnabled() {
		t.Fatal("nil client accessors must be inert")
	}
	c.Close()
}

func TestContextHelpers(t *testing.T) {
	ident, err := identity.New("u1", nil)
	if err != nil {
		t.Fatalf("identity: %v", err)
	}
	sess := &Session{ID: "s1", Identity: ident}

	ctx := WithSession(context.Background(), sess)
	got, ok := SessionFromContext(ctx)
	if !ok || got.ID != "s1" {
		t.Fatal("expected session in context")
	}
	gotIdent, ok := IdentityFromContext(ctx)
	if !ok || gotIdent.ID() != "u1" {
		t.Fatal("expected identity attached with session")
	}

	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("expected no identity in empty context")
	}
	if WithSession(context.Background(), nil) == nil {
		t.Fatal("nil session must leave context usable")
	}
}
