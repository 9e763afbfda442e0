// bundle.go: Environment secret bundles: canonical form, encryption, integrity.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"

	goerrors "github.com/agilira/go-errors"
	"github.com/joho/godotenv"
)

// SecretBundle is one environment's full secret set, serialized to the
// canonical dotenv form and encrypted under the project key. The digest is
// SHA-256 over the raw ciphertext bytes (not the plaintext), hex encoded:
// a cheap transport-integrity check that works without any key.
type SecretBundle struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	Digest     string `json:"digest"`
}

// SecretVersion is an immutable historical snapshot of a bundle, retained
// for rollback. Versions are append-only; rotation re-encrypts them in
// place of identity, never renumbers them.
type SecretVersion struct {
	ID        string       `json:"id"`
	Bundle    SecretBundle `json:"bundle"`
	CreatedAt string       `json:"created_at"`
}

// Values take a minimal percent-encoding before marshalling: godotenv's
// parser mangles escaped double quotes inside quoted values, so quotes,
// backslashes and the escape character itself travel encoded. The encoding
// is bijective, which keeps the canonical form lossless for arbitrary
// values — rotation re-serializes every bundle, so any loss here would be
// permanent.
var (
	secretValueEncoder = strings.NewReplacer("%", "%25", `"`, "%22", `\`, "%5C")
	secretValueDecoder = strings.NewReplacer("%25", "%", "%22", `"`, "%5C", `\`)
)

// canonicalSecretBytes serializes a secret set into its canonical byte
// form: godotenv's sorted KEY="VALUE" rendering over encoded values.
// Determinism matters — two clients holding the same secrets must produce
// byte-identical plaintext, or diffing and digests become meaningless.
func canonicalSecretBytes(set map[string]string) ([]byte, error) {
	encoded := make(map[string]string, len(set))
	for k, v := range set {
		encoded[k] = secretValueEncoder.Replace(v)
	}
	content, err := godotenv.Marshal(encoded)
	if err != nil {
		return nil, goerrors.Wrap(err, "VEIL_SERIALIZE", "failed to serialize secret set")
	}
	return []byte(content), nil
}

// parseSecretBytes is the inverse of canonicalSecretBytes.
func parseSecretBytes(data []byte) (map[string]string, error) {
	parsed, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return nil, goerrors.Wrap(err, "VEIL_SERIALIZE", "failed to parse secret set")
	}
	set := make(map[string]string, len(parsed))
	for k, v := range parsed {
		set[k] = secretValueDecoder.Replace(v)
	}
	return set, nil
}

// bundleDigest computes the hex transport digest over ciphertext bytes.
func bundleDigest(ciphertext []byte) string {
	sum := sha256.Sum256(ciphertext)
	return encodeHex(sum[:])
}

// EncryptSecrets serializes a secret set to its canonical byte form,
// encrypts it under the project key and stamps the ciphertext digest.
func EncryptSecrets(set map[string]string, key []byte) (*SecretBundle, error) {
	plaintext, err := canonicalSecretBytes(set)
	if err != nil {
		return nil, err
	}
	defer Zeroize(plaintext)

	sealed, err := EncryptPayload(plaintext, key)
	if err != nil {
		return nil, err
	}

	raw, err := decodeB64(sealed.Ciphertext)
	if err != nil {
		return nil, err
	}

	return &SecretBundle{
		Ciphertext: sealed.Ciphertext,
		Nonce:      sealed.Nonce,
		Digest:     bundleDigest(raw),
	}, nil
}

// DecryptSecrets verifies a bundle's digest, authenticated-decrypts it and
// parses the canonical form back into a secret set.
//
// The digest is checked first: it is cheap, needs no key, and a mismatch
// means the ciphertext changed in transit or at rest (ErrIntegrity — safe
// to re-fetch). Only then does the AEAD tag get verified; a tag failure is
// ErrAuthentication (wrong key or tampering). User-facing diagnostics must
// keep these two apart.
func DecryptSecrets(bundle *SecretBundle, key []byte) (map[string]string, error) {
	if bundle == nil {
		richErr := goerrors.New(ErrCodeIntegrity, "bundle is nil")
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, richErr)
	}

	raw, err := decodeB64(bundle.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}

	want, err := decodeHex(bundle.Digest)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	sum := sha256.Sum256(raw)
	if subtle.ConstantTimeCompare(sum[:], want) != 1 {
		richErr := goerrors.New(ErrCodeIntegrity, "ciphertext digest mismatch, likely transport corruption")
		return nil, fmt.Errorf("%w: %w", ErrIntegrity, richErr)
	}

	plaintext, err := DecryptPayload(&SealedPayload{Ciphertext: bundle.Ciphertext, Nonce: bundle.Nonce}, key)
	if err != nil {
		return nil, err
	}
	defer Zeroize(plaintext)

	return parseSecretBytes(plaintext)
}
