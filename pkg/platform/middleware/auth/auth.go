// Package auth provides the bearer-token middleware that scopes every
// automation request to its owner. Session management lives in the
// surrounding product; this middleware only verifies the token it minted
// and extracts the owner identity.
package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "nimbus/pkg/domain"
	"nimbus/pkg/requestcontext"
)

// Claims are the token claims the dashboard's session layer issues.
type Claims struct {
	jwt.RegisteredClaims
}

func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"error_description":%q}`, errCode, errDesc))
}

// RequireOwner validates the Authorization bearer token and stores the
// owner ID on the request context. Requests without a valid token never
// reach a handler.
func RequireOwner(signingKey []byte, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, bearerPrefix)
			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
				}
				return signingKey, nil
			})
			if err != nil || !token.Valid {
				logger.Warn("rejected bearer token", "path", r.URL.Path, "error", err)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
				return
			}

			ownerID, err := id.ParseOwnerID(claims.Subject)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "token subject is not a valid owner id")
				return
			}

			ctx := requestcontext.WithOwnerID(r.Context(), ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
