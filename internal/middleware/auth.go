package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"comanda/internal/domain"
)

const unnamedUser = "Unnamed User"

type UserProvisioner interface {
	FindOrCreateByAuthID(ctx context.Context, authID string, email string, name string) (*domain.User, error)
}

type AuthConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type identityClaims struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
	jwt.RegisteredClaims
}

func (c identityClaims) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Nickname != "" {
		return c.Nickname
	}
	return unnamedUser
}

type userIDKey struct{}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// UserIDFromContext returns the internal user id resolved by Auth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey{}).(string)
	return id, ok && id != ""
}

// Auth validates the bearer token and resolves its subject to an internal
// user, provisioning the user on first sight.
func Auth(cfg AuthConfig, users UserProvisioner, logger *zap.Logger) func(http.Handler) http.Handler {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	keyFunc := func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			var claims identityClaims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				logger.Warn("invalid token", zap.Error(err))
				writeUnauthorized(w, "invalid token")
				return
			}
			if claims.Subject == "" {
				writeUnauthorized(w, "token has no subject")
				return
			}

			user, err := users.FindOrCreateByAuthID(r.Context(), claims.Subject, claims.Email, claims.displayName())
			if err != nil {
				logger.Error("user resolution failed", zap.String("authId", claims.Subject), zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":   "INTERNAL_ERROR",
					"message": "an unexpected error occurred",
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), user.ID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "UNAUTHORIZED",
		"message": message,
	})
}
