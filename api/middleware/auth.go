package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/tobennaogbu/kobocart-backend/api/responses"
	pkgAuth "github.com/tobennaogbu/kobocart-backend/pkg/auth"
	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
)

// bearerToken extracts the credential from an Authorization header, with or
// without the Bearer prefix.
func bearerToken(header string) string {
	token := strings.TrimSpace(header)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		token = strings.TrimSpace(token[len("bearer "):])
	}
	return token
}

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reject := func(err error) {
				responses.WriteError(r.Context(), logg, w, err)
			}

			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				reject(pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				reject(pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if !claims.Role.IsValid() {
				reject(pkgerrors.New(pkgerrors.CodeUnauthorized, "unknown role"))
				return
			}

			ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID.String())
			ctx = context.WithValue(ctx, ctxRole, string(claims.Role))
			if claims.Email != "" {
				ctx = context.WithValue(ctx, ctxEmail, claims.Email)
			}
			if logg != nil {
				ctx = logg.WithFields(ctx, map[string]any{
					"user_id":    claims.UserID.String(),
					"actor_role": string(claims.Role),
				})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
