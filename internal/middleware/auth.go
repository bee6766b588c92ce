package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"folio/internal/auth"
	"folio/internal/httputil"
)

// accessTokenParam carries the token for EventSource and WebSocket clients,
// which cannot set an Authorization header
const accessTokenParam = "access_token"

// publicPaths bypass authentication
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// extractToken reads "Bearer <token>" from the Authorization header, falling
// back to the access_token query parameter
func extractToken(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", errors.New("invalid Authorization header format, expected 'Bearer <token>'")
		}
		return token, nil
	}
	if token := r.URL.Query().Get(accessTokenParam); token != "" {
		return token, nil
	}
	return "", errors.New("missing Authorization header")
}

// AuthMiddleware validates the bearer token and stores the user id in the request context
func AuthMiddleware(verifier auth.TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, err := extractToken(r)
			if err != nil {
				httputil.RespondError(w, http.StatusUnauthorized, err.Error())
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				logger.Debug("authentication failed", "path", r.URL.Path, "error", err)
				httputil.RespondError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			next.ServeHTTP(w, httputil.WithUserID(r, claims.UserID()))
		})
	}
}

// StaticUserMiddleware authenticates every request as userID. Only wired in
// dev when no token verifier is configured.
func StaticUserMiddleware(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, httputil.WithUserID(r, userID))
		})
	}
}
