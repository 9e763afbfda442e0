// Package dotveil provides end-to-end encryption for team environment
// secrets: project keys, member envelopes, passphrase-protected identities
// and staged key rotation.
//
// This package offers the full client-side cryptographic engine for a
// zero-knowledge secret manager:
//   - AES-256-GCM authenticated encryption with cipher caching
//   - scrypt key derivation for passphrase-based identity protection
//   - RSA-4096 OAEP key wrapping for per-member project key envelopes
//   - Canonical dotenv bundle serialization with transport digests
//   - Staged project key rotation re-protecting every stored artifact
//   - Credential vault integration with plugin architecture
//   - Secure memory zeroization and buffer pooling for sensitive data
//
// Nothing in this package ever sends plaintext or unwrapped keys to the
// server side: the SecretStore and MemberRoster collaborators only carry
// ciphertext and public keys.
//
// # Quick Start
//
// Establishing a project and protecting secrets:
//
//	// First member generates an identity (once, at first login)
//	identity, err := dotveil.GenerateIdentity()
//	if err != nil {
//		log.Fatal(err)
//	}
//	protected, err := dotveil.ProtectPrivateKey(identity.PrivateKey, passphrase, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Establish the project key and its first envelope
//	engine := dotveil.NewEngine(store, roster, nil)
//	pk, envelope, err := engine.EstablishProjectKey(ctx, projectID, dotveil.Member{
//		ID:        "alice",
//		PublicKey: identity.PublicKey,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Encrypt an environment's secret set
//	bundle, err := dotveil.EncryptSecrets(map[string]string{
//		"DATABASE_URL": "postgres://localhost/app",
//	}, pk.Key)
//
// # Recovering Access on a New Device
//
// The envelope plus the passphrase-protected private key are everything a
// member needs:
//
//	priv, err := dotveil.RecoverPrivateKey(protected, passphrase)
//	if err != nil {
//		// errors.Is(err, dotveil.ErrAuthentication): wrong passphrase
//		log.Fatal(err)
//	}
//	key, err := dotveil.UnwrapProjectKey(envelope, priv)
//	if err != nil {
//		log.Fatal(err)
//	}
//	secrets, err := dotveil.DecryptSecrets(bundle, key)
//
// # Key Rotation
//
// Rotation generates a fresh project key and stages re-encrypted copies of
// every bundle, version and envelope; the engine writes nothing, so the old
// key stays valid until the caller commits the report:
//
//	report, err := engine.Rotate(ctx, projectID, oldKey)
//	if err != nil {
//		log.Fatal(err) // old artifacts untouched
//	}
//	fmt.Println(report.Summary()) // "8 of 8 items rotated"
//	// caller commits report.Bundles, report.Versions, report.Envelopes
//
// # Error Handling
//
// All functions return standard Go errors. Failure classes are exposed as
// sentinels for errors.Is, with rich detail carried through
// github.com/agilira/go-errors:
//
//	secrets, err := dotveil.DecryptSecrets(bundle, key)
//	if errors.Is(err, dotveil.ErrIntegrity) {
//		// ciphertext corrupted in transit, safe to re-fetch
//	} else if errors.Is(err, dotveil.ErrAuthentication) {
//		// wrong key or deliberate tampering
//	}
//
// # Security Considerations
//
//   - AES-256-GCM with a fresh random nonce per encryption
//   - scrypt (N=2^15, r=8, p=1) for passphrase-derived keys
//   - RSA-OAEP with SHA-256 only; no PKCS#1 v1.5 fallback
//   - Passphrases are never transmitted or persisted; there is no escrow
//   - Cipher caching keyed by key fingerprint, never by key bytes
//   - Buffer pooling with automatic zeroing on return
//
// Copyright (c) 2025 AGILira
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0
package dotveil
