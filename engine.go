// engine.go: Project key engine: establishment, sharing, collaborator boundary.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// MemberID identifies a project member in the roster.
type MemberID string

// Member is a roster entry. PublicKey is nil for members who never
// completed identity setup; they cannot receive envelopes until they do.
type Member struct {
	ID        MemberID
	PublicKey *rsa.PublicKey
}

// ProjectKey is a project's symmetric key together with bookkeeping that
// is safe to persist (the fingerprint, never the key bytes).
type ProjectKey struct {
	Key         []byte `json:"-"`
	Fingerprint string `json:"fingerprint"`
	CreatedAt   string `json:"created_at"`
}

// EnvelopeKey is a project key wrapped under one member's public key.
// One exists per (project, member) pair; membership changes and rotations
// invalidate and replace it.
type EnvelopeKey struct {
	MemberID   MemberID `json:"member_id"`
	Ciphertext string   `json:"ciphertext"`
	KeyID      string   `json:"key_id"` // fingerprint of the wrapped project key
	CreatedAt  string   `json:"created_at"`
}

// SecretStore is the server-resident bundle/version collaborator, addressed
// by (projectID, environment). The store holds only ciphertext records; it
// can never decrypt them. The version list is append-only — replacing a
// version's payload during rotation preserves its ID and position.
//
// The engine only reads through this interface. Committing rotation output
// (ReplaceBundle/ReplaceVersion/SaveEnvelopes) is the caller's transaction,
// performed after the engine reports ready-to-commit.
type SecretStore interface {
	Environments(ctx context.Context, projectID string) ([]string, error)
	CurrentBundle(ctx context.Context, projectID, environment string) (*SecretBundle, error)
	ReplaceBundle(ctx context.Context, projectID, environment string, bundle *SecretBundle) error
	Versions(ctx context.Context, projectID, environment string) ([]*SecretVersion, error)
	AppendVersion(ctx context.Context, projectID, environment string, version *SecretVersion) error
	ReplaceVersion(ctx context.Context, projectID, environment string, version *SecretVersion) error
	Envelopes(ctx context.Context, projectID string) ([]*EnvelopeKey, error)
	SaveEnvelopes(ctx context.Context, projectID string, envelopes []*EnvelopeKey) error
}

// MemberRoster is the server-resident membership collaborator. Rotation
// and invitation consult it to know whom to (re-)wrap keys for.
type MemberRoster interface {
	Members(ctx context.Context, projectID string) ([]Member, error)
}

// EngineOptions configures a project key engine. Nil fields fall back to
// defaults, matching the convention used by KDFParams.
type EngineOptions struct {
	// Parallelism caps concurrent re-encryption and wrap operations during
	// rotation. Zero means DefaultRotationParallelism.
	Parallelism int

	// Audit receives best-effort operation records. Nil disables auditing.
	Audit *AuditTrail
}

// DefaultRotationParallelism bounds the rotation worker fan-out. Each
// worker holds at most one decrypted bundle in memory at a time.
const DefaultRotationParallelism = 4

// Engine orchestrates project key lifecycle against the external store and
// roster. It is stateless by contract: every method takes explicit keys and
// returns new values, so a single Engine is safe for concurrent use and
// holds nothing worth stealing.
type Engine struct {
	store  SecretStore
	roster MemberRoster
	opts   EngineOptions
}

// NewEngine creates a project key engine bound to its collaborators.
func NewEngine(store SecretStore, roster MemberRoster, opts *EngineOptions) *Engine {
	e := &Engine{store: store, roster: roster}
	if opts != nil {
		e.opts = *opts
	}
	if e.opts.Parallelism <= 0 {
		e.opts.Parallelism = DefaultRotationParallelism
	}
	return e
}

// newProjectKey builds the bookkeeping record around fresh key bytes.
func newProjectKey(key []byte) *ProjectKey {
	return &ProjectKey{
		Key:         key,
		Fingerprint: KeyFingerprint(key),
		CreatedAt:   timecache.CachedTime().UTC().Format("2006-01-02T15:04:05.000000Z"),
	}
}

// EstablishProjectKey generates a project's symmetric key on first secret
// push and immediately wraps it for the establishing member. The project
// moves from Uninitialized to KeyEstablished; the plaintext key is returned
// to the caller only — it is never handed to the store.
func (e *Engine) EstablishProjectKey(ctx context.Context, projectID string, establisher Member) (*ProjectKey, *EnvelopeKey, error) {
	if establisher.PublicKey == nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrNoPublicKey,
			goerrors.New(ErrCodeWrap, fmt.Sprintf("establishing member %s has no public key", establisher.ID)))
	}

	keyBytes, err := GenerateProjectKey()
	if err != nil {
		return nil, nil, err
	}
	pk := newProjectKey(keyBytes)

	envelope, err := ShareWith(establisher, keyBytes)
	if err != nil {
		Zeroize(keyBytes)
		return nil, nil, err
	}

	if err := e.store.SaveEnvelopes(ctx, projectID, []*EnvelopeKey{envelope}); err != nil {
		Zeroize(keyBytes)
		return nil, nil, goerrors.Wrap(err, ErrCodeVault, "failed to store establishment envelope")
	}

	e.opts.Audit.Record(AuditEntry{
		Operation:      "establish",
		ProjectID:      projectID,
		KeyFingerprint: pk.Fingerprint,
		MembersCount:   1,
	})
	return pk, envelope, nil
}

// ShareWith wraps a project key for one member. Members without a public
// key fail with ErrNoPublicKey; batch callers treat that as skip-and-report,
// never as a failure of the whole operation.
func ShareWith(member Member, key []byte) (*EnvelopeKey, error) {
	if member.PublicKey == nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPublicKey,
			goerrors.New(ErrCodeWrap, fmt.Sprintf("member %s has no public key", member.ID)))
	}
	ciphertext, err := WrapKey(key, member.PublicKey)
	if err != nil {
		return nil, err
	}
	return &EnvelopeKey{
		MemberID:   member.ID,
		Ciphertext: ciphertext,
		KeyID:      KeyFingerprint(key),
		CreatedAt:  timecache.CachedTime().UTC().Format("2006-01-02T15:04:05.000000Z"),
	}, nil
}

// ShareWithAll wraps a project key for every member with a registered
// public key and reports the members it had to skip. The fan-out is an
// independent map over an immutable member list, so it runs in parallel.
//
// Envelope order follows the input member order regardless of which worker
// finished first.
//
// Only the missing-key case is a skip. A wrap failure on a member who does
// hold a public key is a protocol error and fails the whole batch with
// ErrWrap; it must never be misread as an incomplete identity setup.
func ShareWithAll(members []Member, key []byte) ([]*EnvelopeKey, []MemberID, error) {
	type slot struct {
		envelope *EnvelopeKey
		err      error
	}
	slots := make([]slot, len(members))

	var wg sync.WaitGroup
	for i := range members {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			envelope, err := ShareWith(members[i], key)
			slots[i] = slot{envelope: envelope, err: err}
		}(i)
	}
	wg.Wait()

	envelopes := make([]*EnvelopeKey, 0, len(members))
	var skipped []MemberID
	for i, s := range slots {
		switch {
		case s.err == nil:
			envelopes = append(envelopes, s.envelope)
		case errors.Is(s.err, ErrNoPublicKey):
			skipped = append(skipped, members[i].ID)
		default:
			return nil, nil, fmt.Errorf("wrapping for member %s: %w", members[i].ID, s.err)
		}
	}
	return envelopes, skipped, nil
}

// UnwrapProjectKey recovers the project key from a member's envelope using
// their private key. This is how every client learns the key; the dedicated
// Envelopes store surface means no environment needs to exist first.
func UnwrapProjectKey(envelope *EnvelopeKey, priv *rsa.PrivateKey) ([]byte, error) {
	if envelope == nil {
		return nil, fmt.Errorf("%w: %w", ErrWrap, goerrors.New(ErrCodeWrap, "envelope is nil"))
	}
	key, err := UnwrapKey(envelope.Ciphertext, priv)
	if err != nil {
		return nil, err
	}
	if err := ValidateKey(key); err != nil {
		Zeroize(key)
		return nil, err
	}
	return key, nil
}

// NewVersionID mints an opaque identifier for a secret version.
func NewVersionID() string {
	return uuid.NewString()
}
