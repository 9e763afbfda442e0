// asymmetric_test.go: Test cases for RSA key wrapping and PEM codecs.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil_test

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"

	"github.com/klayserDev/dotveil"
)

// testRSAKey generates a small keypair for wrap/unwrap tests. Production
// identities are 4096 bits; tests use 2048 to keep the suite fast, which
// changes nothing about the code paths under test.
func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() error: %v", err)
	}
	return priv
}

// TestGenerateKeypair exercises the production identity path once.
func TestGenerateKeypair(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 4096-bit key generation in short mode")
	}

	kp, err := dotveil.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	if kp.PrivateKey == nil || kp.PublicKey == nil {
		t.Fatal("Keypair should carry both halves")
	}
	if bits := kp.PublicKey.N.BitLen(); bits != dotveil.KeypairBits {
		t.Errorf("Expected %d-bit modulus, got %d", dotveil.KeypairBits, bits)
	}
}

// TestWrapUnwrapKey_RoundTrip verifies the envelope cycle.
func TestWrapUnwrapKey_RoundTrip(t *testing.T) {
	priv := testRSAKey(t)
	key := mustKey(t)

	wrapped, err := dotveil.WrapKey(key, &priv.PublicKey)
	if err != nil {
		t.Fatalf("WrapKey() error: %v", err)
	}

	unwrapped, err := dotveil.UnwrapKey(wrapped, priv)
	if err != nil {
		t.Fatalf("UnwrapKey() error: %v", err)
	}
	if !bytes.Equal(unwrapped, key) {
		t.Error("Unwrapped key does not match original")
	}
}

// TestWrapKey_Oversized verifies the payload bound.
func TestWrapKey_Oversized(t *testing.T) {
	priv := testRSAKey(t)

	limit := dotveil.MaxWrapPayload(&priv.PublicKey)
	oversized := make([]byte, limit+1)

	_, err := dotveil.WrapKey(oversized, &priv.PublicKey)
	if !errors.Is(err, dotveil.ErrWrap) {
		t.Errorf("Expected ErrWrap for oversized payload, got %v", err)
	}

	// Exactly at the limit succeeds.
	if _, err := dotveil.WrapKey(make([]byte, limit), &priv.PublicKey); err != nil {
		t.Errorf("Payload at the wrap limit should succeed, got %v", err)
	}
}

// TestWrapKey_NilPublicKey verifies the nil guard.
func TestWrapKey_NilPublicKey(t *testing.T) {
	_, err := dotveil.WrapKey([]byte("key"), nil)
	if !errors.Is(err, dotveil.ErrWrap) {
		t.Errorf("Expected ErrWrap for nil public key, got %v", err)
	}
}

// TestUnwrapKey_WrongKey verifies that the wrong private key cannot open an
// envelope.
func TestUnwrapKey_WrongKey(t *testing.T) {
	priv := testRSAKey(t)
	other := testRSAKey(t)
	key := mustKey(t)

	wrapped, err := dotveil.WrapKey(key, &priv.PublicKey)
	if err != nil {
		t.Fatalf("WrapKey() error: %v", err)
	}

	_, err = dotveil.UnwrapKey(wrapped, other)
	if !errors.Is(err, dotveil.ErrWrap) {
		t.Errorf("Expected ErrWrap with wrong private key, got %v", err)
	}
}

// TestUnwrapKey_Malformed covers non-base64 and truncated envelopes.
func TestUnwrapKey_Malformed(t *testing.T) {
	priv := testRSAKey(t)

	_, err := dotveil.UnwrapKey("not-base64!!", priv)
	if !errors.Is(err, dotveil.ErrWrap) {
		t.Errorf("Expected ErrWrap for malformed base64, got %v", err)
	}

	_, err = dotveil.UnwrapKey("dHJ1bmNhdGVk", priv)
	if !errors.Is(err, dotveil.ErrWrap) {
		t.Errorf("Expected ErrWrap for truncated envelope, got %v", err)
	}

	_, err = dotveil.UnwrapKey("dHJ1bmNhdGVk", nil)
	if !errors.Is(err, dotveil.ErrWrap) {
		t.Errorf("Expected ErrWrap for nil private key, got %v", err)
	}
}

// TestPrivateKeyPEM_RoundTrip verifies the private key codec.
func TestPrivateKeyPEM_RoundTrip(t *testing.T) {
	priv := testRSAKey(t)

	pemBytes := dotveil.EncodePrivateKeyPEM(priv)
	parsed, err := dotveil.ParsePrivateKeyPEM(pemBytes)
	if err != nil {
		t.Fatalf("ParsePrivateKeyPEM() error: %v", err)
	}
	if parsed.N.Cmp(priv.N) != 0 || parsed.D.Cmp(priv.D) != 0 {
		t.Error("Parsed private key does not match original")
	}

	if _, err := dotveil.ParsePrivateKeyPEM([]byte("not a pem block")); err == nil {
		t.Error("Expected error for garbage PEM input")
	}
}

// TestPublicKeyPEM_RoundTrip verifies the public key codec used for roster
// registration.
func TestPublicKeyPEM_RoundTrip(t *testing.T) {
	priv := testRSAKey(t)

	pemBytes, err := dotveil.EncodePublicKeyPEM(&priv.PublicKey)
	if err != nil {
		t.Fatalf("EncodePublicKeyPEM() error: %v", err)
	}
	parsed, err := dotveil.ParsePublicKeyPEM(pemBytes)
	if err != nil {
		t.Fatalf("ParsePublicKeyPEM() error: %v", err)
	}
	if parsed.N.Cmp(priv.N) != 0 {
		t.Error("Parsed public key does not match original")
	}

	if _, err := dotveil.ParsePublicKeyPEM([]byte("not a pem block")); err == nil {
		t.Error("Expected error for garbage PEM input")
	}
}
