// Package auth verifies bearer credentials and carries the verified subject
// through the request context.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// Verifier validates a bearer credential and returns the subject id.
type Verifier interface {
	Verify(token string) (string, error)
}

// JWTVerifier validates HS256-signed tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a verifier for the given shared secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses and validates the token, returning the subject id from the
// "sub" claim (falling back to "user_id").
func (v *JWTVerifier) Verify(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", eris.Wrap(err, "auth: parse token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", eris.New("auth: unexpected claims type")
	}
	if sub, _ := claims["sub"].(string); sub != "" {
		return sub, nil
	}
	if sub, _ := claims["user_id"].(string); sub != "" {
		return sub, nil
	}
	return "", eris.New("auth: token has no subject")
}

type subjectKey struct{}

// WithSubject returns a context carrying the verified subject id.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the verified subject id, if any.
func SubjectFromContext(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(subjectKey{}).(string)
	return s, ok && s != ""
}
