package postbox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"

	"github.com/pkg/errors"
)

// TokenSize is the number of random bytes in a confirmation token
const TokenSize = 16

// Token is a single-use confirmation credential
type Token []byte

// ParseToken decodes a token from its base64 representation
func ParseToken(s string) (Token, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &Error{Code: EUNAUTHORIZED, Message: "Malformed token.", Err: err}
	}

	return Token(data), nil
}

func (t Token) String() string {
	return base64.StdEncoding.EncodeToString(t)
}

// Equal reports whether both tokens hold the same bytes
func (t Token) Equal(other Token) bool {
	if len(t) == 0 || len(other) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(t, other) == 1
}

// TokenGenerator issues fresh confirmation tokens
type TokenGenerator interface {
	NextToken() (Token, error)
}

// SecureTokenGenerator draws tokens from the system's secure random source
type SecureTokenGenerator struct{}

// NextToken returns TokenSize new random bytes
func (SecureTokenGenerator) NextToken() (Token, error) {
	t := make(Token, TokenSize)
	if _, err := rand.Read(t); err != nil {
		return nil, errors.Wrap(err, "rand.Read")
	}

	return t, nil
}
