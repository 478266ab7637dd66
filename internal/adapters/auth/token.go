package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// TokenAuth checks bearer tokens against the configured set. Tokens are
// held as digests so comparison time does not depend on token contents.
type TokenAuth struct {
	digests [][sha256.Size]byte
}

// NewTokenAuth creates a TokenAuth from the configured tokens. Blank entries
// are ignored.
func NewTokenAuth(tokens []string) *TokenAuth {
	a := &TokenAuth{}
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		a.digests = append(a.digests, sha256.Sum256([]byte(t)))
	}
	return a
}

// ValidateToken reports whether token matches one of the configured tokens.
func (a *TokenAuth) ValidateToken(token string) bool {
	if token == "" {
		return false
	}
	sum := sha256.Sum256([]byte(token))
	ok := 0
	for i := range a.digests {
		ok |= subtle.ConstantTimeCompare(sum[:], a.digests[i][:])
	}
	return ok == 1
}

// Len returns the number of usable tokens.
func (a *TokenAuth) Len() int {
	return len(a.digests)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
