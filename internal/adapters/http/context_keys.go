package http

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey is a typed context key so values cannot collide with other
// packages.
type contextKey string

// claimsContextKey holds the verified JWT claims for the request.
const claimsContextKey = contextKey("claims")

// ClaimsFromContext returns the verified claims stored by JWTMiddleware.
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(jwt.MapClaims)
	return claims, ok
}

// userIDFromContext extracts the authenticated user id from the token's
// subject claim.
func userIDFromContext(ctx context.Context) (uuid.UUID, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return uuid.Nil, errors.New("claims missing from context")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return uuid.Nil, errors.New("token has no subject")
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, errors.New("token subject is not a user id")
	}
	return id, nil
}
