package utils

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const base62 = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// CodeIDLength keeps encoded QR payloads short enough for small print sizes.
const CodeIDLength = 12

// NewCodeID returns a fresh, URL-safe base62 identifier for a QR code.
func NewCodeID() (string, error) {
	id, err := gonanoid.Generate(base62, CodeIDLength)
	if err != nil {
		return "", fmt.Errorf("generate code id: %w", err)
	}
	return id, nil
}

// ValidCodeID reports whether s could have been produced by NewCodeID.
// Lookups short-circuit on anything else.
func ValidCodeID(s string) bool {
	if len(s) != CodeIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}
