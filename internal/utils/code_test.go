package utils

import (
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestGenerateDigits(t *testing.T) {
    code, err := GenerateDigits(6)
    require.NoError(t, err)
    assert.Len(t, code, 6)
    for _, r := range code {
        assert.True(t, r >= '0' && r <= '9', "expected digit, got %q", r)
    }
}

func TestGenerateDigits_DefaultLength(t *testing.T) {
    code, err := GenerateDigits(0)
    require.NoError(t, err)
    assert.Len(t, code, 6)
}

func TestGenerateToken(t *testing.T) {
    a, err := GenerateToken(32)
    require.NoError(t, err)
    b, err := GenerateToken(32)
    require.NoError(t, err)
    assert.NotEqual(t, a, b)
    // 32 bytes base64url without padding is 43 chars.
    assert.Len(t, a, 43)
}

func TestSHA256Hex(t *testing.T) {
    h := SHA256Hex("token")
    assert.Len(t, h, 64)
    assert.Equal(t, h, SHA256Hex("token"))
    assert.NotEqual(t, h, SHA256Hex("token2"))
}
