package router

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ovaphlow/pitchfork/service-identity-go/internal/token"
)

type contextKey struct{}

// TokenDecoder is satisfied by *token.Signer.
type TokenDecoder interface {
	DecodeValid(tokenString string) (*token.Claims, error)
}

// RequireAuth rejects requests without a valid, unexpired access token and
// stores its claims on the request context.
func RequireAuth(decoder TokenDecoder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			claims, err := decoder.DecodeValid(raw)
			if err != nil || claims.Kind != token.KindAccess {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), contextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims stored by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	c, ok := ctx.Value(contextKey{}).(*token.Claims)
	return c, ok
}

func bearerToken(r *http.Request) (string, error) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", errors.New("missing authorization")
	}
	scheme, raw, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("invalid authorization")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("invalid authorization")
	}
	return raw, nil
}
