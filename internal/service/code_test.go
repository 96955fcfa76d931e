package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCode_AlwaysSixDigits(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.GreaterOrEqual(t, code[0], byte('1'), "code must not have a leading zero: %s", code)
		for _, ch := range code {
			assert.True(t, ch >= '0' && ch <= '9', "code must contain only digits: %s", code)
		}
	}
}

func TestComputeCodeHash_Deterministic(t *testing.T) {
	h1 := computeCodeHash(42, "login", "123456", "secret")
	h2 := computeCodeHash(42, "login", "123456", "secret")
	assert.Equal(t, h1, h2, "same inputs must always produce the same hash")
	assert.Len(t, h1, 64, "hex-encoded SHA-256 output")
}

func TestComputeCodeHash_InputsAreBound(t *testing.T) {
	base := computeCodeHash(42, "login", "123456", "secret")

	assert.NotEqual(t, base, computeCodeHash(43, "login", "123456", "secret"), "different user")
	assert.NotEqual(t, base, computeCodeHash(42, "elevate", "123456", "secret"), "different purpose")
	assert.NotEqual(t, base, computeCodeHash(42, "login", "654321", "secret"), "different code")
	assert.NotEqual(t, base, computeCodeHash(42, "login", "123456", "other"), "different secret")
}

func TestCodeHashEqual(t *testing.T) {
	h := computeCodeHash(1, "login", "123456", "secret")
	assert.True(t, codeHashEqual(h, h))
	assert.False(t, codeHashEqual(h, computeCodeHash(1, "login", "000000", "secret")))
	assert.False(t, codeHashEqual(h, ""))
}

func TestCodeFingerprint_NeverContainsPlaintext(t *testing.T) {
	code := "123456"
	hash := computeCodeHash(7, "login", code, "secret")
	fp := codeFingerprint(hash)

	assert.True(t, strings.HasPrefix(fp, "v1:hmac-sha256:"))
	assert.NotContains(t, fp, code)
	assert.Greater(t, len(fp), len("v1:hmac-sha256:"), "fingerprint carries a payload for a valid hash")
}

func TestCodeFingerprint_MalformedHash(t *testing.T) {
	assert.Equal(t, "v1:hmac-sha256:", codeFingerprint("not-hex"))
	assert.Equal(t, "v1:hmac-sha256:", codeFingerprint("abcd"))
}
