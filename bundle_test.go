// bundle_test.go: Test cases for secret bundle encryption and integrity.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil_test

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"reflect"
	"testing"

	"github.com/klayserDev/dotveil"
)

func testSecretSet() map[string]string {
	return map[string]string{
		"DATABASE_URL": "postgres://localhost:5432/app",
		"API_KEY":      "sk-test-1234567890",
		"DEBUG":        "false",
	}
}

// TestEncryptDecryptSecrets_RoundTrip verifies the full bundle cycle.
func TestEncryptDecryptSecrets_RoundTrip(t *testing.T) {
	key := mustKey(t)
	set := testSecretSet()

	bundle, err := dotveil.EncryptSecrets(set, key)
	if err != nil {
		t.Fatalf("EncryptSecrets() error: %v", err)
	}
	if bundle.Ciphertext == "" || bundle.Nonce == "" || bundle.Digest == "" {
		t.Fatal("Bundle should carry ciphertext, nonce and digest")
	}

	decrypted, err := dotveil.DecryptSecrets(bundle, key)
	if err != nil {
		t.Fatalf("DecryptSecrets() error: %v", err)
	}
	if !reflect.DeepEqual(decrypted, set) {
		t.Errorf("Decrypted set %v does not match original %v", decrypted, set)
	}
}

// TestEncryptSecrets_EmptySet verifies an empty environment round-trips.
func TestEncryptSecrets_EmptySet(t *testing.T) {
	key := mustKey(t)

	bundle, err := dotveil.EncryptSecrets(map[string]string{}, key)
	if err != nil {
		t.Fatalf("EncryptSecrets() error: %v", err)
	}
	decrypted, err := dotveil.DecryptSecrets(bundle, key)
	if err != nil {
		t.Fatalf("DecryptSecrets() error: %v", err)
	}
	if len(decrypted) != 0 {
		t.Errorf("Expected empty set, got %v", decrypted)
	}
}

// TestDecryptSecrets_DigestMismatch verifies that transport corruption is
// reported as ErrIntegrity, before and instead of an authentication failure.
func TestDecryptSecrets_DigestMismatch(t *testing.T) {
	key := mustKey(t)

	bundle, err := dotveil.EncryptSecrets(testSecretSet(), key)
	if err != nil {
		t.Fatalf("EncryptSecrets() error: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(bundle.Ciphertext)
	raw[0] ^= 0x01
	bundle.Ciphertext = base64.StdEncoding.EncodeToString(raw)

	_, err = dotveil.DecryptSecrets(bundle, key)
	if !errors.Is(err, dotveil.ErrIntegrity) {
		t.Errorf("Expected ErrIntegrity for corrupted transport, got %v", err)
	}
	if errors.Is(err, dotveil.ErrAuthentication) {
		t.Error("Transport corruption must not be reported as an authentication failure")
	}
}

// TestDecryptSecrets_WrongKey verifies that a wrong key passes the digest
// check but fails authentication. The two failure classes stay distinct.
func TestDecryptSecrets_WrongKey(t *testing.T) {
	key := mustKey(t)
	other := mustKey(t)

	bundle, err := dotveil.EncryptSecrets(testSecretSet(), key)
	if err != nil {
		t.Fatalf("EncryptSecrets() error: %v", err)
	}

	_, err = dotveil.DecryptSecrets(bundle, other)
	if !errors.Is(err, dotveil.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication with wrong key, got %v", err)
	}
	if errors.Is(err, dotveil.ErrIntegrity) {
		t.Error("A wrong key must not be reported as transport corruption")
	}
}

// TestDecryptSecrets_TamperedWithValidDigest simulates an attacker who
// flips ciphertext bits and recomputes the digest: the keyless digest can
// be forged, the authentication tag cannot.
func TestDecryptSecrets_TamperedWithValidDigest(t *testing.T) {
	key := mustKey(t)

	bundle, err := dotveil.EncryptSecrets(testSecretSet(), key)
	if err != nil {
		t.Fatalf("EncryptSecrets() error: %v", err)
	}

	raw, _ := base64.StdEncoding.DecodeString(bundle.Ciphertext)
	raw[0] ^= 0x01
	sum := sha256.Sum256(raw)
	bundle.Ciphertext = base64.StdEncoding.EncodeToString(raw)
	bundle.Digest = hex.EncodeToString(sum[:])

	_, err = dotveil.DecryptSecrets(bundle, key)
	if !errors.Is(err, dotveil.ErrAuthentication) {
		t.Errorf("Expected ErrAuthentication for tampering with forged digest, got %v", err)
	}
}

// TestDecryptSecrets_NilBundle verifies the nil guard.
func TestDecryptSecrets_NilBundle(t *testing.T) {
	key := mustKey(t)

	_, err := dotveil.DecryptSecrets(nil, key)
	if !errors.Is(err, dotveil.ErrIntegrity) {
		t.Errorf("Expected ErrIntegrity for nil bundle, got %v", err)
	}
}

// TestEncryptSecrets_ValuesWithSpecials verifies values that stress the
// dotenv serialization survive the round trip.
func TestEncryptSecrets_ValuesWithSpecials(t *testing.T) {
	key := mustKey(t)
	set := map[string]string{
		"MULTIWORD":  "value with spaces",
		"QUOTED":     `he said "hello"`,
		"ALL_QUOTES": `""""`,
		"BACKSLASH":  `C:\Users\app\"x\"`,
		"PERCENT":    `100% done, literal %22 and %5C kept`,
		"NEWLINE":    "line1\nline2",
		"EMPTY":      "",
		"EQUALS":     "a=b=c",
		"NUMERIC":    "42",
	}

	bundle, err := dotveil.EncryptSecrets(set, key)
	if err != nil {
		t.Fatalf("EncryptSecrets() error: %v", err)
	}
	decrypted, err := dotveil.DecryptSecrets(bundle, key)
	if err != nil {
		t.Fatalf("DecryptSecrets() error: %v", err)
	}
	if !reflect.DeepEqual(decrypted, set) {
		t.Errorf("Decrypted set %v does not match original %v", decrypted, set)
	}
}
