// keyutil.go: Key material helpers: generation, codecs, zeroization, fingerprints.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	goerrors "github.com/agilira/go-errors"
)

// KeySize is the project symmetric key size in bytes (AES-256).
const KeySize = 32

// GenerateProjectKey generates a fresh random symmetric key of KeySize bytes.
//
// One project key exists per project; it is the unit of zero-knowledge for
// that project's secrets and is only ever distributed wrapped under a
// member's public key.
func GenerateProjectKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, goerrors.Wrap(err, "VEIL_KEY_GEN", "failed to generate project key")
	}
	return key, nil
}

// GenerateNonce generates a cryptographically secure random nonce of the given size.
func GenerateNonce(size int) ([]byte, error) {
	if size <= 0 {
		return nil, goerrors.New("VEIL_NONCE_SIZE", "nonce size must be positive")
	}
	nonce := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, goerrors.Wrap(err, "VEIL_NONCE_GEN", "failed to generate nonce")
	}
	return nonce, nil
}

// ValidateKey checks that a symmetric key has the correct size for AES-256.
func ValidateKey(key []byte) error {
	if len(key) != KeySize {
		richErr := goerrors.New(ErrCodeInvalidKey, fmt.Sprintf("key size must be %d bytes (got %d)", KeySize, len(key)))
		return fmt.Errorf("%w: %w", ErrInvalidKeySize, richErr)
	}
	return nil
}

// Zeroize securely wipes a byte slice from memory.
//
// Call it on project keys and derived keys as soon as an operation no
// longer needs them; this engine holds no key state of its own.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// KeyFingerprint returns a short non-cryptographic identifier for a key:
// the first 8 bytes of its SHA-256, hex encoded. Safe for logs and audit
// entries; the fingerprint reveals nothing usable about the key itself.
func KeyFingerprint(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	sum := sha256.Sum256(key)
	return fmt.Sprintf("%016x", sum[:8])
}

// encodeB64 and decodeB64 are the single binary-at-rest representation used
// by every record type. Raw binary never crosses the engine boundary.
func encodeB64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeB64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeDecode, "failed to decode base64 field")
	}
	return b, nil
}

// encodeHex and decodeHex carry integrity digests, which are conventionally
// hex rather than base64.
func encodeHex(b []byte) string {
	return hex.EncodeToString(b)
}

func decodeHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeDecode, "failed to decode hex field")
	}
	return b, nil
}
