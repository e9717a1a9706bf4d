package middleware

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/transport"
	"github.com/frahmantamala/coaching-payments/pkg/logger"
)

// OperatorClaims are issued by the identity provider to back-office users.
// Tokens are only verified here, never issued.
type OperatorClaims struct {
	Email       string   `json:"email"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

type claimsKey struct{}

func ClaimsFromContext(ctx context.Context) (*OperatorClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*OperatorClaims)
	return claims, ok && claims != nil
}

func ParseOperatorToken(tokenString string, key *rsa.PublicKey) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.ErrTokenExpired
		}
		return nil, apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}

// Authenticate verifies the bearer token against key and stores the claims
// in the request context.
func Authenticate(key *rsa.PublicKey, lg *slog.Logger) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(lg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := transport.ExtractTokenFromHeader(r)
			if token == "" {
				base.Logger.Warn("auth middleware: missing authorization token", "path", r.URL.Path)
				base.HandleError(w, apperrors.ErrMissingToken)
				return
			}

			claims, err := ParseOperatorToken(token, key)
			if err != nil {
				base.Logger.Warn("token validation failed", "path", r.URL.Path, "error", err)
				base.HandleServiceError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			ctx = apperrors.ContextWithSubject(ctx, claims.Subject)
			ctx = logger.With(ctx, "operator", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
