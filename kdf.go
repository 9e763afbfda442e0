// kdf.go: Passphrase key derivation for identity protection.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil

import (
	"crypto/rand"
	"fmt"
	"io"

	goerrors "github.com/agilira/go-errors"
	"golang.org/x/crypto/scrypt"
)

// Default scrypt parameters for passphrase key derivation.
// These values target roughly 0.1-1s on commodity hardware, which is the
// intended interactive cost for unlocking a protected private key.
const (
	// DefaultN is the scrypt CPU/memory cost parameter (must be a power of two).
	DefaultN = 1 << 15

	// DefaultR is the scrypt block size parameter.
	DefaultR = 8

	// DefaultP is the scrypt parallelization parameter.
	DefaultP = 1

	// DefaultMaxMemMB bounds scrypt's working memory in MB. Derivation fails
	// with ErrKeyDerivation when the configured cost cannot fit.
	DefaultMaxMemMB = 64
)

const (
	// SaltSize is the required salt length in bytes for key derivation.
	SaltSize = 32

	// MinPassphraseLen is the minimum accepted passphrase length.
	// Shorter passphrases are rejected before any derivation work happens.
	MinPassphraseLen = 12
)

// KDFParams defines custom parameters for scrypt key derivation.
//
// If a field is zero, the library's secure default will be used. The same
// parameters must be supplied for derivation and later re-derivation, so
// they are echoed inside ProtectedPrivateKey records.
//
// Example:
//
//	params := &dotveil.KDFParams{N: 1 << 16, R: 8, P: 1}
//	key, err := dotveil.DeriveKey(passphrase, salt, params)
//
//	// Use secure defaults (pass nil)
//	key, err := dotveil.DeriveKey(passphrase, salt, nil)
type KDFParams struct {
	// N is the scrypt CPU/memory cost. Must be a power of two greater
	// than one. If zero, DefaultN is used.
	N int `json:"n,omitempty"`

	// R is the scrypt block size. If zero, DefaultR is used.
	R int `json:"r,omitempty"`

	// P is the scrypt parallelization factor. If zero, DefaultP is used.
	P int `json:"p,omitempty"`

	// MaxMemMB bounds scrypt's working memory in MB. If zero,
	// DefaultMaxMemMB is used.
	MaxMemMB int `json:"max_mem_mb,omitempty"`
}

// DefaultKDFParams returns the library's production derivation parameters.
//
// Parameters: N=2^15, r=8, p=1, 64MB ceiling.
func DefaultKDFParams() *KDFParams {
	return &KDFParams{
		N:        DefaultN,
		R:        DefaultR,
		P:        DefaultP,
		MaxMemMB: DefaultMaxMemMB,
	}
}

// FastKDFParams returns parameters tuned for tests and development.
//
// These keep derivation in the low milliseconds and must not be used to
// protect real identities.
//
// Parameters: N=2^10, r=8, p=1, 16MB ceiling.
func FastKDFParams() *KDFParams {
	return &KDFParams{
		N:        1 << 10,
		R:        8,
		P:        1,
		MaxMemMB: 16,
	}
}

// GenerateSalt generates a cryptographically secure random salt of SaltSize bytes.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, goerrors.Wrap(err, "VEIL_SALT_GEN", "failed to generate salt")
	}
	return salt, nil
}

// DeriveKey derives a KeySize-byte symmetric key from a passphrase and salt
// using scrypt, a memory-hard construction.
//
// Derivation is deterministic: the same passphrase, salt and parameters
// always yield the same key. That determinism is what makes later recovery
// of a protected private key possible, so callers must persist the salt and
// parameters next to anything encrypted under the derived key.
//
// There is no "wrong passphrase" at this layer. A mistyped passphrase
// derives a different key, and the mismatch only surfaces later as an
// ErrAuthentication from the cipher unit. DeriveKey itself fails only on
// policy violations (length, salt size) or resource exhaustion
// (ErrKeyDerivation, e.g. the memory ceiling).
//
// Parameters:
//   - passphrase: user-supplied secret, at least MinPassphraseLen characters
//   - salt: random salt, exactly SaltSize bytes
//   - params: custom scrypt parameters (nil to use secure defaults)
func DeriveKey(passphrase string, salt []byte, params *KDFParams) ([]byte, error) {
	if len(passphrase) < MinPassphraseLen {
		richErr := goerrors.New(ErrCodePassphrase, fmt.Sprintf("passphrase must be at least %d characters", MinPassphraseLen))
		return nil, fmt.Errorf("%w: %w", ErrPassphraseTooShort, richErr)
	}
	if len(salt) != SaltSize {
		richErr := goerrors.New(ErrCodeInvalidSalt, fmt.Sprintf("salt must be %d bytes (got %d)", SaltSize, len(salt)))
		return nil, fmt.Errorf("%w: %w", ErrInvalidSaltSize, richErr)
	}

	n, r, p, maxMemMB := DefaultN, DefaultR, DefaultP, DefaultMaxMemMB
	if params != nil {
		if params.N > 0 {
			n = params.N
		}
		if params.R > 0 {
			r = params.R
		}
		if params.P > 0 {
			p = params.P
		}
		if params.MaxMemMB > 0 {
			maxMemMB = params.MaxMemMB
		}
	}

	// scrypt needs 128*N*r bytes of working memory. Enforcing the ceiling
	// here keeps the failure mode a clean ErrKeyDerivation instead of an OOM.
	required := 128 * int64(n) * int64(r)
	if required > int64(maxMemMB)*1024*1024 {
		richErr := goerrors.New(ErrCodeKeyDerivation, fmt.Sprintf("scrypt cost N=%d r=%d exceeds %dMB memory ceiling", n, r, maxMemMB))
		return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, richErr)
	}

	key, err := scrypt.Key([]byte(passphrase), salt, n, r, p, KeySize)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeKeyDerivation, "scrypt derivation failed")
		return nil, fmt.Errorf("%w: %w", ErrKeyDerivation, richErr)
	}
	return key, nil
}
