// asymmetric.go: RSA keypairs and OAEP key wrapping for member envelopes.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	goerrors "github.com/agilira/go-errors"
)

// KeypairBits is the RSA modulus size for member identities.
// 4096 bits keeps the wrapped-key envelope comfortably within one
// RSA block while meeting long-term strength requirements.
const KeypairBits = 4096

// Keypair is a member's asymmetric identity. The public key is shareable;
// the private key must never leave the owning device unencrypted.
type Keypair struct {
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
}

// GenerateKeypair creates a fresh RSA-4096 keypair. This runs once per
// user at first login and is the slow path by design.
func GenerateKeypair() (*Keypair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeypairBits)
	if err != nil {
		return nil, goerrors.Wrap(err, "VEIL_KEYPAIR_GEN", "failed to generate RSA keypair")
	}
	return &Keypair{PublicKey: &priv.PublicKey, PrivateKey: priv}, nil
}

// MaxWrapPayload returns the largest payload WrapKey accepts for a given
// public key: the modulus size minus the OAEP/SHA-256 padding overhead.
// A 32-byte project key fits with wide margin.
func MaxWrapPayload(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

// WrapKey encrypts a small payload (a project key) under a member's public
// key using RSA-OAEP with SHA-256.
//
// OAEP provides chosen-ciphertext security; this unit must never fall back
// to unpadded or PKCS#1 v1.5 encryption. The payload is bounded by
// MaxWrapPayload — this is a key-wrapping primitive, not a bulk cipher.
//
// Returns the envelope ciphertext as base64 text, or ErrWrap when the
// payload is oversized.
func WrapKey(payload []byte, pub *rsa.PublicKey) (string, error) {
	if pub == nil {
		richErr := goerrors.New(ErrCodeWrap, "public key is nil")
		return "", fmt.Errorf("%w: %w", ErrWrap, richErr)
	}
	if len(payload) > MaxWrapPayload(pub) {
		richErr := goerrors.New(ErrCodeWrap, fmt.Sprintf("payload of %d bytes exceeds wrap limit of %d", len(payload), MaxWrapPayload(pub)))
		return "", fmt.Errorf("%w: %w", ErrWrap, richErr)
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, payload, nil)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeWrap, "OAEP encryption failed")
		return "", fmt.Errorf("%w: %w", ErrWrap, richErr)
	}
	return encodeB64(ciphertext), nil
}

// UnwrapKey decrypts an envelope ciphertext with the member's private key.
//
// Fails with ErrWrap on malformed input. OAEP reports a single opaque
// failure for every decryption problem, so a wrong private key and a
// corrupted envelope are indistinguishable here, as they must be.
func UnwrapKey(ciphertext string, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		richErr := goerrors.New(ErrCodeWrap, "private key is nil")
		return nil, fmt.Errorf("%w: %w", ErrWrap, richErr)
	}
	raw, err := decodeB64(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWrap, err)
	}

	payload, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, raw, nil)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeWrap, "OAEP decryption failed")
		return nil, fmt.Errorf("%w: %w", ErrWrap, richErr)
	}
	return payload, nil
}

// EncodePrivateKeyPEM serializes an RSA private key to PKCS#1 PEM bytes.
// The result is plaintext key material: it exists only as the input to
// ProtectPrivateKey and must be zeroized after use.
func EncodePrivateKeyPEM(priv *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(priv),
	})
}

// ParsePrivateKeyPEM parses PKCS#1 PEM bytes back into an RSA private key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, goerrors.New(ErrCodeDecode, "failed to decode PEM block containing private key")
	}
	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

// EncodePublicKeyPEM serializes an RSA public key to PKIX PEM bytes,
// the form registered with the member roster.
func EncodePublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeDecode, "failed to marshal public key")
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKeyPEM parses PKIX PEM bytes back into an RSA public key.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, goerrors.New(ErrCodeDecode, "failed to decode PEM block containing public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, goerrors.New(ErrCodeDecode, "not an RSA public key")
	}
	return rsaPub, nil
}
