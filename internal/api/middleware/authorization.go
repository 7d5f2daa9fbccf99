package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	authservice "livechat-backend/internal/service/auth"
)

type identityKey struct{}

// ValidateEmployeeJWT rejects requests without a valid employee token and
// stores the caller's identity on the request context.
func ValidateEmployeeJWT(auth *authservice.Service) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
			if err != nil {
				writeUnauthorized(w, err)
				return
			}
			next(w, r.WithContext(WithIdentity(r.Context(), identity)))
		}
	}
}

// ValidateEmployeeQueryToken is the websocket variant: browsers cannot set
// headers on an upgrade request, so the token travels as ?token=.
func ValidateEmployeeQueryToken(auth *authservice.Service) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.IdentityFromToken(strings.TrimSpace(r.URL.Query().Get("token")))
			if err != nil {
				writeUnauthorized(w, err)
				return
			}
			next(w, r.WithContext(WithIdentity(r.Context(), identity)))
		}
	}
}

func WithIdentity(ctx context.Context, identity authservice.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext reports the authenticated employee, if any.
func IdentityFromContext(ctx context.Context) (authservice.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(authservice.Identity)
	return identity, ok
}

func writeUnauthorized(w http.ResponseWriter, err error) {
	message := "Unauthorized"
	var authErr *authservice.Error
	if errors.As(err, &authErr) {
		message = authErr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"message": message,
		"code":    "unauthorized",
	})
}
