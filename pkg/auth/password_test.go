package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPasswordWithSalt(t *testing.T) {
	require.Equal(t, HashPasswordWithSalt("hunter2", "pepper"), HashPasswordWithSalt("hunter2", "pepper"))
	require.NotEqual(t, HashPasswordWithSalt("hunter2", "pepper"), HashPasswordWithSalt("hunter2", "salt"))
	require.Len(t, HashPasswordWithSalt("", ""), 64)
}

func TestGenerateHashAndSalt(t *testing.T) {
	hash, salt, err := GenerateHashAndSalt("swordfish")
	require.NoError(t, err)
	require.Len(t, salt, 32)
	require.True(t, CheckPassword("swordfish", salt, hash))
	require.False(t, CheckPassword("Swordfish", salt, hash))

	_, salt2, err := GenerateHashAndSalt("swordfish")
	require.NoError(t, err)
	require.NotEqual(t, salt, salt2)
}
