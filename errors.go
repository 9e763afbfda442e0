// errors.go: Error taxonomy for the dotveil key-management engine.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil

import (
	"errors"
	"fmt"
)

// Public standard errors for drop-in compatibility.
// These errors can be used with errors.Is() for error checking.
//
// The taxonomy is deliberately small and disjoint:
//
//   - ErrKeyDerivation: the memory-hard KDF ran out of resources. There is
//     no "wrong input" at the derivation layer, so this never signals a bad
//     passphrase.
//   - ErrAuthentication: an AEAD tag did not verify, or a passphrase-derived
//     key failed to unlock a protected private key. Security relevant, never
//     retried automatically.
//   - ErrIntegrity: a ciphertext digest did not match. Almost always
//     transport corruption; safe to re-fetch.
//   - ErrWrap: an asymmetric wrap/unwrap failed (oversized payload or
//     malformed ciphertext). Programmer or protocol error.
//
// ErrAuthentication and ErrIntegrity must never be conflated: the first
// means "wrong key or tampering", the second "corrupted download".
var (
	// ErrKeyDerivation is returned when key derivation fails due to
	// resource exhaustion (e.g. the scrypt memory ceiling).
	ErrKeyDerivation = errors.New("dotveil: key derivation failed")

	// ErrPassphraseTooShort is returned when a passphrase does not meet the
	// minimum length policy. It is a policy error, not a derivation failure.
	ErrPassphraseTooShort = errors.New("dotveil: passphrase too short")

	// ErrAuthentication is returned when an authentication tag does not
	// verify, or a recovery passphrase does not unlock a protected key.
	ErrAuthentication = errors.New("dotveil: authentication failed")

	// ErrIntegrity is returned when a bundle's content digest does not match
	// its ciphertext. Distinct from ErrAuthentication by design.
	ErrIntegrity = errors.New("dotveil: integrity digest mismatch")

	// ErrWrap is returned on asymmetric wrap/unwrap failure.
	ErrWrap = errors.New("dotveil: key wrap failed")

	// ErrInvalidKeySize is returned when a symmetric key is not exactly
	// KeySize bytes.
	ErrInvalidKeySize = errors.New("dotveil: invalid key size")

	// ErrInvalidSaltSize is returned when a salt is not exactly SaltSize bytes.
	ErrInvalidSaltSize = errors.New("dotveil: invalid salt size")

	// ErrNoPublicKey marks a member who never completed identity setup.
	// Envelope fan-out skips and reports such members, it does not fail.
	ErrNoPublicKey = errors.New("dotveil: member has no registered public key")

	// ErrRotationAborted is returned when a rotation terminates without a
	// usable report (cancellation or new-key generation failure). The old
	// key and artifacts remain fully intact.
	ErrRotationAborted = errors.New("dotveil: rotation aborted")

	// ErrVaultUnavailable is returned when no credential vault provider in
	// the fallback chain is healthy.
	ErrVaultUnavailable = errors.New("dotveil: no credential vault available")
)

// Error codes for rich error handling via github.com/agilira/go-errors.
const (
	ErrCodeKeyDerivation  = "VEIL_KDF_FAILED"
	ErrCodePassphrase     = "VEIL_PASSPHRASE_POLICY"
	ErrCodeAuthentication = "VEIL_AUTH_FAILED"
	ErrCodeIntegrity      = "VEIL_INTEGRITY"
	ErrCodeWrap           = "VEIL_WRAP"
	ErrCodeInvalidKey     = "VEIL_INVALID_KEY"
	ErrCodeInvalidSalt    = "VEIL_INVALID_SALT"
	ErrCodeEncrypt        = "VEIL_ENCRYPT"
	ErrCodeDecrypt        = "VEIL_DECRYPT"
	ErrCodeDecode         = "VEIL_DECODE"
	ErrCodeRotation       = "VEIL_ROTATION"
	ErrCodeVault          = "VEIL_VAULT"
)

// RotationItemError records the failure of a single bundle or version
// during rotation. Items that fail are excluded from the staged output and
// reported; the rotation as a whole may still succeed.
//
// The error text identifies the item by project, environment and version so
// the caller can act on it, and never contains key material.
type RotationItemError struct {
	ProjectID   string
	Environment string
	VersionID   string // empty for the current bundle
	Err         error
}

func (e *RotationItemError) Error() string {
	if e.VersionID == "" {
		return fmt.Sprintf("rotation item %s/%s (current bundle): %v", e.ProjectID, e.Environment, e.Err)
	}
	return fmt.Sprintf("rotation item %s/%s version %s: %v", e.ProjectID, e.Environment, e.VersionID, e.Err)
}

func (e *RotationItemError) Unwrap() error { return e.Err }
