// symmetric.go: Authenticated symmetric encryption using AES-256-GCM.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	goerrors "github.com/agilira/go-errors"
)

// Cipher cache keyed by key fingerprint. Building aes.NewCipher +
// cipher.NewGCM per call dominates the cost of small-payload encryption,
// and rotation re-encrypts many artifacts under the same two keys.
var (
	cipherCacheMu sync.RWMutex
	cipherCache   = make(map[string]cipher.AEAD)
)

func getCachedGCM(key []byte) (cipher.AEAD, error) {
	fingerprint := KeyFingerprint(key)

	cipherCacheMu.RLock()
	if gcm, ok := cipherCache[fingerprint]; ok {
		cipherCacheMu.RUnlock()
		return gcm, nil
	}
	cipherCacheMu.RUnlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}

	cipherCacheMu.Lock()
	cipherCache[fingerprint] = gcm
	cipherCacheMu.Unlock()

	return gcm, nil
}

// SealedPayload is the output of the symmetric cipher unit: ciphertext
// (with the GCM authentication tag appended) and the nonce used for this
// one operation, both base64 text so the record is JSON/API-safe.
type SealedPayload struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
}

// EncryptPayload encrypts a plaintext byte slice using AES-256-GCM
// authenticated encryption.
//
// A fresh random nonce is generated on every call. Nonce reuse under the
// same key breaks GCM completely, so there is deliberately no API that
// accepts a caller-chosen nonce.
//
// Parameters:
//   - plaintext: the bytes to encrypt (can be empty)
//   - key: the KeySize-byte encryption key
//
// Returns the sealed payload, or an error if the key is malformed or the
// system RNG fails.
func EncryptPayload(plaintext, key []byte) (*SealedPayload, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	gcm, err := getCachedGCM(key)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeEncrypt, "failed to initialize cipher")
	}

	nonceBuf := getBuffer(gcm.NonceSize())
	defer putBuffer(nonceBuf)
	nonce := (*nonceBuf)[:gcm.NonceSize()]

	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, goerrors.Wrap(err, ErrCodeEncrypt, "failed to generate nonce")
	}

	ciphertextBuf := getBundleBuffer()
	defer putBundleBuffer(ciphertextBuf)
	if cap(ciphertextBuf) < len(plaintext)+gcm.Overhead() {
		ciphertextBuf = make([]byte, 0, len(plaintext)+gcm.Overhead())
	}

	ciphertext := gcm.Seal(ciphertextBuf, nonce, plaintext, nil) // #nosec G407 -- nonce is generated from crypto/rand, not hardcoded

	return &SealedPayload{
		Ciphertext: encodeB64(ciphertext),
		Nonce:      encodeB64(nonce),
	}, nil
}

// DecryptPayload decrypts a sealed payload using AES-256-GCM.
//
// The authentication tag is verified before any plaintext is returned; a
// tampered ciphertext, a corrupted nonce or a wrong key all fail with
// ErrAuthentication. GCM's tag check is constant-time over the whole tag,
// so the error does not leak where a mismatch occurred.
func DecryptPayload(sealed *SealedPayload, key []byte) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if sealed == nil || sealed.Ciphertext == "" {
		richErr := goerrors.New(ErrCodeDecode, "sealed payload is empty")
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, richErr)
	}

	ciphertext, err := decodeB64(sealed.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	nonce, err := decodeB64(sealed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	gcm, err := getCachedGCM(key)
	if err != nil {
		return nil, goerrors.Wrap(err, ErrCodeDecrypt, "failed to initialize cipher")
	}
	if len(nonce) != gcm.NonceSize() {
		richErr := goerrors.New(ErrCodeDecrypt, fmt.Sprintf("nonce must be %d bytes (got %d)", gcm.NonceSize(), len(nonce)))
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, richErr)
	}
	if len(ciphertext) < gcm.Overhead() {
		richErr := goerrors.New(ErrCodeDecrypt, "ciphertext shorter than authentication tag")
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, richErr)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeDecrypt, "authentication tag verification failed")
		return nil, fmt.Errorf("%w: %w", ErrAuthentication, richErr)
	}
	return plaintext, nil
}
