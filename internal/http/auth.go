package http

import (
	"context"
	"crypto/ed25519"
	"net/http"
	"strings"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Identity is the authenticated caller: a subject inside a tenant. Both come
// from the bearer token minted by the identity provider; this service never
// mints caller tokens itself, only verifies them.
type Identity struct {
	SubjectID string
	TenantID  string
}

type identityKey struct{}

// ContextWithIdentity injects an identity. Used by the auth middleware and by
// handler tests.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the authenticated identity, if any.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// WithBearerAuth verifies the Authorization bearer token (EdDSA) and scopes
// the resulting identity into the context. Tokens must carry "sub" and "tid".
func WithBearerAuth(next http.Handler, pub ed25519.PublicKey, issuer string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		claims := jwtv5.MapClaims{}
		opts := []jwtv5.ParserOption{jwtv5.WithValidMethods([]string{"EdDSA"})}
		if issuer != "" {
			opts = append(opts, jwtv5.WithIssuer(issuer))
		}
		tk, err := jwtv5.ParseWithClaims(raw, claims, func(t *jwtv5.Token) (any, error) {
			return pub, nil
		}, opts...)
		if err != nil || !tk.Valid {
			unauthorized(w, "invalid token")
			return
		}

		sub, _ := claims["sub"].(string)
		tid, _ := claims["tid"].(string)
		if sub == "" || tid == "" {
			unauthorized(w, "token missing sub or tid")
			return
		}

		ctx := ContextWithIdentity(r.Context(), Identity{SubjectID: sub, TenantID: tid})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func unauthorized(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="paygate"`)
	WriteError(w, http.StatusUnauthorized, "unauthorized", desc, 1401)
}

// WithAdminKey gates the admin surface behind a static API key checked
// against a bcrypt hash. The plaintext key never lives in config or logs.
func WithAdminKey(next http.Handler, keyHash string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if keyHash == "" {
			WriteError(w, http.StatusForbidden, "admin_disabled", "admin API key not configured", 1403)
			return
		}
		key := strings.TrimSpace(r.Header.Get("X-Admin-API-Key"))
		if key == "" {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "missing admin API key", 1401)
			return
		}
		if bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)) != nil {
			WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid admin API key", 1401)
			return
		}
		next.ServeHTTP(w, r)
	})
}
