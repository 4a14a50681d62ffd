// internal/handlers/middleware/auth.go
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ammerola/stockflow/internal/pkg/logger"
)

// AuthConfig configures bearer token verification
type AuthConfig struct {
	Secret []byte
	Issuer string
	// Public paths skip authentication, matched exactly.
	Public []string
}

// Claims are the token claims the API reads
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// Authenticate verifies an HS256 bearer token and stores the subject as
// the request's user id.
func Authenticate(cfg AuthConfig, l *slog.Logger) Middleware {
	public := make(map[string]struct{}, len(cfg.Public))
	for _, p := range cfg.Public {
		public[p] = struct{}{}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}

			var claims Claims
			_, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
				return cfg.Secret, nil
			})
			if err != nil {
				l.WarnContext(r.Context(), "token rejected", slog.String("error", err.Error()))
				if errors.Is(err, jwt.ErrTokenExpired) {
					unauthorized(w, "token expired")
					return
				}
				unauthorized(w, "invalid token")
				return
			}
			if claims.Subject == "" {
				unauthorized(w, "token has no subject")
				return
			}

			ctx := context.WithValue(r.Context(), logger.ContextKeyUserID, claims.Subject)
			if st := stateFrom(ctx); st != nil {
				st.userID = claims.Subject
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFrom returns the authenticated user id, if any
func UserIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(logger.ContextKeyUserID).(string)
	return id
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="stockflow"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
