package registry

import (
	"crypto/rand"
	"fmt"
)

const (
	codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	codeLength   = 8
)

// CodeProvider issues identifiers for bundles created without a client code.
type CodeProvider interface {
	NewCode() (string, error)
}

type randomCodeProvider struct{}

// NewRandomCodeProvider constructs a CodeProvider that issues short base-36
// tokens from cryptographically random bytes. Codes are not guaranteed
// globally unique; a collision surfaces as a primary-key violation on insert.
func NewRandomCodeProvider() CodeProvider {
	return &randomCodeProvider{}
}

func (p *randomCodeProvider) NewCode() (string, error) {
	raw := make([]byte, codeLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	token := make([]byte, codeLength)
	for i, b := range raw {
		token[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(token), nil
}
