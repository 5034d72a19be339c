package services

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	// JoinCodeAlphabet leaves out characters that are easy to confuse (0/O, 1/I/L).
	JoinCodeAlphabet    = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	JoinCodeLength      = 6
	MaxJoinCodeAttempts = 10
)

// GenerateJoinCode returns a random code of JoinCodeLength characters.
func GenerateJoinCode() (string, error) {
	var sb strings.Builder
	sb.Grow(JoinCodeLength)
	max := big.NewInt(int64(len(JoinCodeAlphabet)))
	for i := 0; i < JoinCodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		sb.WriteByte(JoinCodeAlphabet[n.Int64()])
	}
	return sb.String(), nil
}

// NormalizeJoinCode trims and upper-cases user input.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidJoinCode reports whether code has the right length and alphabet.
func ValidJoinCode(code string) bool {
	if len(code) != JoinCodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(JoinCodeAlphabet, r) {
			return false
		}
	}
	return true
}

// UniqueJoinCode draws codes until taken reports one as free, giving up
// after MaxJoinCodeAttempts.
func UniqueJoinCode(generate func() (string, error), taken func(code string) (bool, error)) (string, error) {
	for attempt := 0; attempt < MaxJoinCodeAttempts; attempt++ {
		code, err := generate()
		if err != nil {
			return "", err
		}
		exists, err := taken(code)
		if err != nil {
			return "", fmt.Errorf("check join code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrJoinCodeExhausted
}
