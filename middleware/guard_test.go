package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	goSSO "github.com/MrEthical07/goSSO"
	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestClient(t *testing.T) (*goSSO.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})

	cfg := goSSO.DefaultConfig()
	cfg.DefaultProvider = "corp"
	cfg.Providers = []goSSO.ProviderConfig{
		{Name: "corp", Format: goSSO.FormatJSON},
		{Name: "idp", Format: goSSO.FormatJWT, JWT: goSSO.JWTConfig{Method: "hs256", Secret: testSecret}},
	}
	cfg.Session.Enabled = true

	client, err := goSSO.New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return client, mr
}

func identityEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("expected identity in context")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(ident.ID()))
	})
}

func TestRequireSessionCookieAndBearer(t *testing.T) {
	client, _ := newTestClient(t)
	sess, err := client.Login(context.Background(), "corp", `{"uid":"u123","name":"Alice"}`)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	h := RequireSession(client, "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := SessionFromContext(r.Context())
		if !ok || got.ID != sess.ID {
			t.Error("expected session in context")
		}
		identityEcho(t).ServeHTTP(w, r)
	}))

	byCookie := httptest.NewRequest(http.MethodGet, "/", nil)
	byCookie.AddCookie(&http.Cookie{Name: DefaultSessionCookie, Value: sess.ID})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, byCookie)
	if rec.Code != http.StatusOK || rec.Body.String() != "u123" {
		t.Fatalf("cookie: unexpected response %d %q", rec.Code, rec.Body.String())
	}

	byHeader := httptest.NewRequest(http.MethodGet, "/", nil)
	byHeader.Header.Set("Authorization", "Bearer "+sess.ID)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, byHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("bearer: expected 200, got %d", rec.Code)
	}
}

func TestRequireSessionRejects(t *testing.T) {
	client, mr := newTestClient(t)
	h := RequireSession(client, "sid")(identityEcho(t))

	cases := []struct {
		name  string
		setup func(r *http.Request)
		want  int
	}{
		{"no credentials", func(*http.Request) {}, http.StatusUnauthorized},
		{"unknown session", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "sid", Value: "nope"}) }, http.StatusUnauthorized},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }, http.StatusUnauthorized},
		{"empty bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer  ") }, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}

	mr.Close()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: "any"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with store down, got %d", rec.Code)
	}
}

func TestRequireSessionNilClient(t *testing.T) {
	rec := httptest.NewRecorder()
	RequireSession(nil, "")(identityEcho(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireToken(t *testing.T) {
	client, _ := newTestClient(t)
	h := RequireToken(client, "idp")(identityEcho(t))

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u9"}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "u9" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":   {"abc", true},
		"Bearer  abc ": {"abc", true},
		"bearer abc":   {"", false},
		"Bearer ":      {"", false},
		"":             {"", false},
	}
	for in, want := range cases {
		got, ok := bearerToken(in)
		if got != want.token || ok != want.ok {
			t.Fatalf("bearerToken(%q) = %q, %v", in, got, ok)
		}
	}
}
