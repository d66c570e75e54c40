// Package middleware hosts authentication, logging, idempotency, and rate
// limiting middleware for the ledger service.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey avoids collisions when storing values in request contexts.
type contextKey string

const (
	ctxUserUIDKey        contextKey = "user_uid"
	ctxInstallationIDKey contextKey = "installation_id"
)

// AuthMiddleware validates bearer JWTs and injects the caller identity
// into the request context.
type AuthMiddleware struct {
	jwtSecret string
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: secret}
}

// Authenticate enforces bearer auth and populates the user uid on the
// request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if strings.TrimSpace(authHeader) == "" {
			jsonError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			jsonError(w, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(m.jwtSecret), nil
		})
		if err != nil || !token.Valid {
			jsonError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "Invalid token claims")
			return
		}

		if exp, ok := claims["exp"].(float64); ok {
			if time.Now().Unix() > int64(exp) {
				jsonError(w, http.StatusUnauthorized, "Token expired")
				return
			}
		}

		uidStr, ok := claims["uid"].(string)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "Invalid uid in token")
			return
		}
		uid, err := uuid.Parse(uidStr)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "Invalid uid in token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserUIDKey, uid)
		if instID, ok := claims["installation_id"].(string); ok {
			ctx = context.WithValue(ctx, ctxInstallationIDKey, instID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserUIDFromContext extracts the authenticated user uid.
func UserUIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	uid, ok := ctx.Value(ctxUserUIDKey).(uuid.UUID)
	return uid, ok
}

// ContextWithUserUID returns a context carrying the given user uid, as
// Authenticate would have set it.
func ContextWithUserUID(ctx context.Context, uid uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxUserUIDKey, uid)
}
