// identity_test.go: Test cases for the passphrase-protected identity vault.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil_test

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/klayserDev/dotveil"
)

// TestProtectRecoverPrivateKey verifies the full new-device recovery cycle.
func TestProtectRecoverPrivateKey(t *testing.T) {
	priv := testRSAKey(t)

	prot, err := dotveil.ProtectPrivateKey(priv, testPassphrase, dotveil.FastKDFParams())
	if err != nil {
		t.Fatalf("ProtectPrivateKey() error: %v", err)
	}
	if prot.Ciphertext == "" || prot.Nonce == "" || prot.Salt == "" {
		t.Fatal("Protected record should carry ciphertext, nonce and salt")
	}
	if prot.CreatedAt == "" {
		t.Error("Protected record should be timestamped")
	}

	recovered, err := dotveil.RecoverPrivateKey(prot, testPassphrase)
	if err != nil {
		t.Fatalf("RecoverPrivateKey() error: %v", err)
	}
	if recovered.N.Cmp(priv.N) != 0 || recovered.D.Cmp(priv.D) != 0 {
		t.Error("Recovered private key does not match original")
	}
}

// TestRecoverPrivateKey_WrongPassphrase verifies that even a single case
// change fails authentication. This is the "incorrect passphrase" path every
// client surfaces to users.
func TestRecoverPrivateKey_WrongPassphrase(t *testing.T) {
	priv := testRSAKey(t)

	prot, err := dotveil.ProtectPrivateKey(priv, testPassphrase, dotveil.FastKDFParams())
	if err != nil {
		t.Fatalf("ProtectPrivateKey() error: %v", err)
	}

	_, err = dotveil.RecoverPrivateKey(prot, "Correct-horse-battery-staple")
	if !errors.Is(err, dotveil.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication for wrong passphrase, got %v", err)
	}
}

// TestProtectPrivateKey_EchoesParams verifies KDF parameters survive in the
// record, so recovery works even after library defaults change.
func TestProtectPrivateKey_EchoesParams(t *testing.T) {
	priv := testRSAKey(t)

	params := dotveil.FastKDFParams()
	prot, err := dotveil.ProtectPrivateKey(priv, testPassphrase, params)
	if err != nil {
		t.Fatalf("ProtectPrivateKey() error: %v", err)
	}
	if prot.KDF == nil || prot.KDF.N != params.N || prot.KDF.R != params.R || prot.KDF.P != params.P {
		t.Errorf("Record should echo the supplied KDF parameters, got %+v", prot.KDF)
	}

	// Nil parameters are echoed as the library defaults.
	prot2, err := dotveil.ProtectPrivateKey(priv, testPassphrase, nil)
	if err != nil {
		t.Fatalf("ProtectPrivateKey(nil params) error: %v", err)
	}
	if prot2.KDF == nil || prot2.KDF.N != dotveil.DefaultN {
		t.Errorf("Nil params should be recorded as defaults, got %+v", prot2.KDF)
	}
}

// TestProtectPrivateKey_FreshSalt verifies every protection uses a new salt.
func TestProtectPrivateKey_FreshSalt(t *testing.T) {
	priv := testRSAKey(t)

	prot1, err := dotveil.ProtectPrivateKey(priv, testPassphrase, dotveil.FastKDFParams())
	if err != nil {
		t.Fatalf("ProtectPrivateKey() error: %v", err)
	}
	prot2, err := dotveil.ProtectPrivateKey(priv, testPassphrase, dotveil.FastKDFParams())
	if err != nil {
		t.Fatalf("ProtectPrivateKey() error: %v", err)
	}

	if prot1.Salt == prot2.Salt {
		t.Error("Each protection must use a fresh salt")
	}
	if prot1.Ciphertext == prot2.Ciphertext {
		t.Error("Fresh salt and nonce should yield distinct ciphertext")
	}
}

// TestRecoverPrivateKey_CorruptedRecord verifies corrupted ciphertext is
// indistinguishable from a wrong passphrase, as the vault requires.
func TestRecoverPrivateKey_CorruptedRecord(t *testing.T) {
	priv := testRSAKey(t)

	prot, err := dotveil.ProtectPrivateKey(priv, testPassphrase, dotveil.FastKDFParams())
	if err != nil {
		t.Fatalf("ProtectPrivateKey() error: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(prot.Ciphertext)
	if err != nil {
		t.Fatalf("Ciphertext should be valid base64: %v", err)
	}
	raw[len(raw)/2] ^= 0xFF
	prot.Ciphertext = base64.StdEncoding.EncodeToString(raw)

	_, err = dotveil.RecoverPrivateKey(prot, testPassphrase)
	if !errors.Is(err, dotveil.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication for corrupted record, got %v", err)
	}
}

// TestRecoverPrivateKey_NilRecord verifies the nil guard.
func TestRecoverPrivateKey_NilRecord(t *testing.T) {
	if _, err := dotveil.RecoverPrivateKey(nil, testPassphrase); err == nil {
		t.Error("Expected error for nil record")
	}
}

// TestGenerateIdentity exercises the first-login path.
func TestGenerateIdentity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 4096-bit key generation in short mode")
	}

	identity, err := dotveil.GenerateIdentity()
	if err != nil {
		t.Fatalf("GenerateIdentity() error: %v", err)
	}
	if identity.PrivateKey == nil || identity.PublicKey == nil {
		t.Fatal("Identity should carry a full keypair")
	}
}
