package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streakhub/streak-hub/internal/domain/shared"
)

func TestGate_PlainSecret(t *testing.T) {
	g, err := NewGate("Валера", "")
	require.NoError(t, err)

	assert.NoError(t, g.Check("Валера"))
	assert.ErrorIs(t, g.Check("Валера "), shared.ErrWrongSecret)
	assert.ErrorIs(t, g.Check(""), shared.ErrWrongSecret)
}

func TestGate_BcryptHash(t *testing.T) {
	hash, err := HashSecret("Валера")
	require.NoError(t, err)

	g, err := NewGate("ignored", hash)
	require.NoError(t, err)

	assert.NoError(t, g.Check("Валера"))
	assert.ErrorIs(t, g.Check("ignored"), shared.ErrWrongSecret)
}

func TestNewGate_Invalid(t *testing.T) {
	_, err := NewGate("", "")
	assert.Error(t, err)

	_, err = NewGate("", "not-a-hash")
	assert.Error(t, err)
}
