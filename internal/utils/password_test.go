package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	encoded, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$"))

	ok, err := VerifyPassword("s3cret", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("wrong", encoded)
	require.NoError(t, err)
	assert.False(t, ok)

	// 同一密码每次生成不同的盐
	again, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, encoded, again)
}

func TestVerifyPasswordRejectsMalformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=18$m=1,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$***$aGFzaA",
	} {
		_, err := VerifyPassword("x", encoded)
		assert.Error(t, err, encoded)
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, err := HashPasswordWithConfig("pw", &PasswordConfig{Time: 1, Memory: 1024, Threads: 1, KeyLen: 16})
	require.NoError(t, err)
	assert.True(t, NeedsRehash(weak))

	strong, err := HashPassword("pw")
	require.NoError(t, err)
	assert.False(t, NeedsRehash(strong))

	assert.True(t, NeedsRehash("garbage"))
}

func TestGenerateSessionID(t *testing.T) {
	a, err := GenerateSessionID()
	require.NoError(t, err)
	b, err := GenerateSessionID()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
