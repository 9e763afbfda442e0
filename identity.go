// identity.go: Identity vault: passphrase-protected private key lifecycle.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil

import (
	"crypto/rsa"
	"fmt"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
)

// ProtectedPrivateKey is the only form of a private key that may ever reach
// the server: the PEM-encoded key encrypted under a passphrase-derived key.
// Salt and nonce are stored alongside so any device can re-derive and
// decrypt; the KDF parameters are echoed so recovery survives a change of
// library defaults. All binary fields are text-encoded.
type ProtectedPrivateKey struct {
	Ciphertext string     `json:"ciphertext"`
	Nonce      string     `json:"nonce"`
	Salt       string     `json:"salt"`
	KDF        *KDFParams `json:"kdf,omitempty"`
	CreatedAt  string     `json:"created_at"`
}

// GenerateIdentity creates a fresh keypair for a user. It runs once, at
// first login, before anything is uploaded; ProtectPrivateKey must be
// applied to the private key before it touches the network.
func GenerateIdentity() (*Keypair, error) {
	return GenerateKeypair()
}

// ProtectPrivateKey encrypts a private key under a passphrase-derived key
// using a fresh random salt.
//
// The passphrase is the one secret that is never transmitted or persisted
// anywhere, which also means losing it is unrecoverable by design: there
// is deliberately no escrow and no backdoor.
//
// Parameters:
//   - priv: the private key to protect
//   - passphrase: at least MinPassphraseLen characters
//   - params: KDF cost parameters (nil for defaults); echoed in the result
func ProtectPrivateKey(priv *rsa.PrivateKey, passphrase string, params *KDFParams) (*ProtectedPrivateKey, error) {
	if priv == nil {
		return nil, goerrors.New("VEIL_IDENTITY", "private key is nil")
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	key, err := DeriveKey(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	defer Zeroize(key)

	pemBytes := EncodePrivateKeyPEM(priv)
	defer Zeroize(pemBytes)

	sealed, err := EncryptPayload(pemBytes, key)
	if err != nil {
		return nil, fmt.Errorf("failed to protect private key: %w", err)
	}

	if params == nil {
		params = DefaultKDFParams()
	}
	return &ProtectedPrivateKey{
		Ciphertext: sealed.Ciphertext,
		Nonce:      sealed.Nonce,
		Salt:       encodeB64(salt),
		KDF:        params,
		CreatedAt:  timecache.CachedTime().UTC().Format("2006-01-02T15:04:05.000000Z"),
	}, nil
}

// RecoverPrivateKey re-derives the protection key from the stored salt and
// decrypts the private key, typically on a new device.
//
// A wrong passphrase fails with ErrAuthentication. The vault cannot
// distinguish a wrong passphrase from corrupted ciphertext — both derive to
// a failed authentication tag — and it must not try: callers surface the
// error as "incorrect passphrase".
func RecoverPrivateKey(prot *ProtectedPrivateKey, passphrase string) (*rsa.PrivateKey, error) {
	if prot == nil {
		return nil, goerrors.New("VEIL_IDENTITY", "protected key record is nil")
	}

	salt, err := decodeB64(prot.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	key, err := DeriveKey(passphrase, salt, prot.KDF)
	if err != nil {
		return nil, err
	}
	defer Zeroize(key)

	pemBytes, err := DecryptPayload(&SealedPayload{Ciphertext: prot.Ciphertext, Nonce: prot.Nonce}, key)
	if err != nil {
		return nil, err
	}
	defer Zeroize(pemBytes)

	priv, err := ParsePrivateKeyPEM(pemBytes)
	if err != nil {
		richErr := goerrors.Wrap(err, "VEIL_IDENTITY", "decrypted key did not parse")
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, richErr)
	}
	return priv, nil
}
