package hub

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/streakhub/streak-hub/internal/domain/shared"
)

// Gate checks the shared join secret. With a bcrypt hash configured the plain
// secret is ignored.
type Gate struct {
	secret []byte
	hash   []byte
}

// NewGate builds a gate from a plain secret or a bcrypt hash.
func NewGate(secret, hash string) (*Gate, error) {
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("gate: invalid bcrypt hash: %w", err)
		}
		return &Gate{hash: []byte(hash)}, nil
	}
	if secret == "" {
		return nil, errors.New("gate: a secret or a bcrypt hash is required")
	}
	return &Gate{secret: []byte(secret)}, nil
}

// Check compares candidate exactly, without trimming.
func (g *Gate) Check(candidate string) error {
	if g.hash != nil {
		if err := bcrypt.CompareHashAndPassword(g.hash, []byte(candidate)); err != nil {
			return shared.ErrWrongSecret
		}
		return nil
	}
	if subtle.ConstantTimeCompare(g.secret, []byte(candidate)) != 1 {
		return shared.ErrWrongSecret
	}
	return nil
}

// HashSecret returns a bcrypt hash suitable for the gate configuration.
func HashSecret(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
