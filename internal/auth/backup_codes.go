package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	DefaultBackupCodeCount = 10
	backupCodeBytes        = 4
	maxBackupCodeAttempts  = 1000 // generation attempts per batch before giving up on uniqueness
)

// GenerateBackupCodes returns count distinct one-time codes formatted XXXX-XXXX
func GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		count = DefaultBackupCodeCount
	}

	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	buf := make([]byte, backupCodeBytes)

	for attempts := 0; len(codes) < count; attempts++ {
		if attempts >= maxBackupCodeAttempts {
			return nil, fmt.Errorf("failed to generate %d unique backup codes", count)
		}
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate backup code: %w", err)
		}

		raw := strings.ToUpper(hex.EncodeToString(buf))
		if _, dup := seen[raw]; dup {
			continue
		}
		seen[raw] = struct{}{}
		codes = append(codes, raw[:4]+"-"+raw[4:])
	}

	return codes, nil
}

// HashBackupCode returns the SHA-256 hex digest of the canonical code
func HashBackupCode(code string) string {
	sum := sha256.Sum256([]byte(canonicalBackupCode(code)))
	return hex.EncodeToString(sum[:])
}

// HashBackupCodes hashes every code for storage
func HashBackupCodes(codes []string) []string {
	hashes := make([]string, len(codes))
	for i, code := range codes {
		hashes[i] = HashBackupCode(code)
	}
	return hashes
}

// VerifyBackupCode returns the index of the stored hash matching code, or -1.
// Every stored hash is compared so timing does not depend on the match position.
func VerifyBackupCode(code string, hashes []string) int {
	canonical := canonicalBackupCode(code)
	if canonical == "" {
		return -1
	}

	candidate := []byte(HashBackupCode(canonical))
	index := -1
	for i, stored := range hashes {
		if subtle.ConstantTimeCompare(candidate, []byte(stored)) == 1 && index < 0 {
			index = i
		}
	}

	return index
}

func canonicalBackupCode(code string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, strings.ToUpper(code))
}
