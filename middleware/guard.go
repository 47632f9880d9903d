package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goSSO "github.com/MrEthical07/goSSO"
	"github.com/MrEthical07/goSSO/identity"
)

// DefaultSessionCookie is the cookie read by RequireSession when no name is given.
const DefaultSessionCookie = "sso_session"

// IdentityFromContext returns the identity attached by either guard.
func IdentityFromContext(ctx context.Context) (identity.Identity, bool) {
	return goSSO.IdentityFromContext(ctx)
}

// SessionFromContext returns the session attached by RequireSession.
func SessionFromContext(ctx context.Context) (*goSSO.Session, bool) {
	return goSSO.SessionFromContext(ctx)
}

// RequireSession resolves the session named by cookieName, or by a bearer
// Authorization header, and attaches it and its identity to the request
// context. Missing or expired sessions get 401; store failures get 503.
func RequireSession(client *goSSO.Client, cookieName string) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = DefaultSessionCookie
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if client == nil || !client.SessionsEnabled() {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sid, ok := sessionID(r, cookieName)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			sess, err := client.Current(r.Context(), sid)
			if err != nil {
				if errors.Is(err, goSSO.ErrStoreUnavailable) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(goSSO.WithSession(r.Context(), sess)))
		})
	}
}

// RequireToken converts the bearer token with provider's deserializer and
// attaches the identity. Nothing is stored; every request is converted anew.
func RequireToken(client *goSSO.Client, provider string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if client == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ident, err := client.Deserialize(r.Context(), provider, token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(goSSO.WithIdentity(r.Context(), ident)))
		})
	}
}

func sessionID(r *http.Request, cookieName string) (string, bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
