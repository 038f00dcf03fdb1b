package utils

import (
    "crypto/rand"
    "encoding/base64"
)

// GenerateToken returns an opaque URL-safe token carrying nBytes of entropy.
// Callers should store only its SHA256Hex, never the clear value.
func GenerateToken(nBytes int) (string, error) {
    if nBytes <= 0 {
        nBytes = 32
    }
    b := make([]byte, nBytes)
    if _, err := rand.Read(b); err != nil {
        return "", err
    }
    return base64.RawURLEncoding.EncodeToString(b), nil
}
