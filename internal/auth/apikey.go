package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var (
	// ErrMissingAPIKey indicates that a request carried no credential at all.
	ErrMissingAPIKey = errors.New("auth: api key required")
	// ErrInvalidAPIKey indicates that the supplied credential did not match.
	ErrInvalidAPIKey = errors.New("auth: invalid api key")
)

const bearerPrefix = "Bearer "

// KeyValidator checks request credentials against a static shared secret.
// An empty secret disables the check entirely.
type KeyValidator struct {
	secret []byte
}

// NewKeyValidator constructs a validator for the provided shared secret.
func NewKeyValidator(secret string) *KeyValidator {
	return &KeyValidator{secret: []byte(strings.TrimSpace(secret))}
}

// Enabled reports whether requests are required to present the secret.
func (v *KeyValidator) Enabled() bool {
	return len(v.secret) > 0
}

// ExtractToken pulls the credential from the x-api-key header value or the
// Authorization header's bearer token, preferring x-api-key.
func ExtractToken(apiKeyHeader, authorizationHeader string) string {
	if token := strings.TrimSpace(apiKeyHeader); token != "" {
		return token
	}
	if strings.HasPrefix(authorizationHeader, bearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorizationHeader, bearerPrefix))
	}
	return ""
}

// Validate compares the supplied token against the configured secret. A
// disabled validator accepts every request, including ones with no token.
func (v *KeyValidator) Validate(token string) error {
	if !v.Enabled() {
		return nil
	}
	if token == "" {
		return ErrMissingAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(token), v.secret) != 1 {
		return ErrInvalidAPIKey
	}
	return nil
}
