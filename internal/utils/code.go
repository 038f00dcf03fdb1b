package utils

import (
    "crypto/rand"
    "math/big"
)

const digitAlphabet = "0123456789"

// GenerateDigits returns n uniformly random ASCII digits, suitable for the
// rotating sheet codes encoded as QR payloads.
func GenerateDigits(n int) (string, error) {
    if n <= 0 {
        n = 6
    }
    b := make([]byte, n)
    for i := 0; i < n; i++ {
        idxBig, err := rand.Int(rand.Reader, big.NewInt(int64(len(digitAlphabet))))
        if err != nil {
            return "", err
        }
        b[i] = digitAlphabet[idxBig.Int64()]
    }
    return string(b), nil
}
