package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// RandomDigits returns n random decimal digits drawn from crypto/rand.
func RandomDigits(n int) (string, error) {
	const charset = "0123456789"

	result := make([]byte, n)
	for i := range result {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("failed to read random digit: %w", err)
		}
		result[i] = charset[num.Int64()]
	}
	return string(result), nil
}

// IsAnyBlank reports whether any value is empty or whitespace only.
func IsAnyBlank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
