package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"folio/internal/domain"
)

// authenticatedRole is the only Supabase role allowed through; anon tokens are rejected
const authenticatedRole = "authenticated"

// JWTVerifier validates Supabase access tokens, either against the project's
// JWKS endpoint (asymmetric keys) or a shared HS256 secret.
type JWTVerifier struct {
	keyFunc    jwt.Keyfunc
	allowedAlg []string
	logger     *slog.Logger
}

// NewJWKSVerifier creates a verifier that fetches public keys from the JWKS endpoint.
// keyfunc caches the keys and refreshes them based on HTTP cache headers.
func NewJWKSVerifier(ctx context.Context, jwksURL string, logger *slog.Logger) (*JWTVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "jwks_url", jwksURL)

	return &JWTVerifier{
		keyFunc:    jwks.Keyfunc,
		allowedAlg: []string{"RS256", "ES256"},
		logger:     logger,
	}, nil
}

// NewSecretVerifier creates a verifier for projects still signing with the
// legacy HS256 JWT secret
func NewSecretVerifier(secret []byte, logger *slog.Logger) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("JWT secret cannot be empty")
	}

	logger.Info("JWT verifier initialized with shared secret")

	return &JWTVerifier{
		keyFunc:    func(*jwt.Token) (interface{}, error) { return secret, nil },
		allowedAlg: []string{"HS256"},
		logger:     logger,
	}, nil
}

// VerifyToken validates a JWT token and extracts the claims.
func (v *JWTVerifier) VerifyToken(tokenString string) (*Claims, error) {
	// WithValidMethods prevents algorithm confusion attacks
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyFunc,
		jwt.WithValidMethods(v.allowedAlg),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		v.logger.Debug("token rejected", "error", err)
		return nil, &domain.UnauthorizedError{Message: "invalid token"}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, &domain.UnauthorizedError{Message: "invalid token"}
	}

	if claims.Subject == "" {
		v.logger.Debug("token missing subject claim")
		return nil, &domain.UnauthorizedError{Message: "token has no subject"}
	}

	if claims.Role != authenticatedRole {
		v.logger.Debug("token has invalid role",
			"role", claims.Role,
			"user_id", claims.Subject,
		)
		return nil, &domain.UnauthorizedError{Message: "token is not for an authenticated user"}
	}

	return claims, nil
}

// Close releases resources held by the verifier. keyfunc v3 manages its own
// refresh goroutine, so this only logs for shutdown symmetry.
func (v *JWTVerifier) Close() error {
	v.logger.Info("JWT verifier closed")
	return nil
}
