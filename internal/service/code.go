package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

// fingerprintVersion tags the diagnostic blob schema so support tooling can
// tell generations apart.
const fingerprintVersion = 1

// generateCode returns a uniformly random 6-digit code in [100000, 999999]
// from a cryptographically secure source.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// computeCodeHash derives the stored hash: HMAC-SHA256 over
// "userID:purpose:code" keyed with the server secret. Deterministic, with
// no salt: verification recomputes and compares byte-for-byte.
func computeCodeHash(userID uint, purpose, code, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d:%s:%s", userID, purpose, code)
	return hex.EncodeToString(mac.Sum(nil))
}

// codeHashEqual compares a recomputed hash against the stored one in
// constant time.
func codeHashEqual(expected, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(stored)) == 1
}

// codeFingerprint builds the opaque diagnostic blob persisted alongside the
// hash: algorithm id, schema version and a truncated alternate encoding.
// Not security-critical; never contains the plaintext code.
func codeFingerprint(codeHash string) string {
	raw, err := hex.DecodeString(codeHash)
	if err != nil || len(raw) < 9 {
		return fmt.Sprintf("v%d:hmac-sha256:", fingerprintVersion)
	}
	alt := base64.RawStdEncoding.EncodeToString(raw[:9])
	return fmt.Sprintf("v%d:hmac-sha256:%s", fingerprintVersion, alt)
}
