// rotation.go: Project key rotation: staged re-encryption of every artifact.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil

import (
	"context"
	"fmt"
	"sync"

	goerrors "github.com/agilira/go-errors"
	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// RotatedBundle is one environment's current bundle re-encrypted under the
// new project key, staged for commit.
type RotatedBundle struct {
	Environment string        `json:"environment"`
	Bundle      *SecretBundle `json:"bundle"`
}

// RotatedVersion is one historical version re-encrypted under the new
// project key. The version keeps its ID and timestamp: rotation changes a
// version's protection, never its identity or its place in history.
type RotatedVersion struct {
	Environment string         `json:"environment"`
	Version     *SecretVersion `json:"version"`
}

// RotationReport is the staged output of a rotation: everything the caller
// needs to commit atomically to the external store, plus the per-item
// failures that were skipped. The engine itself writes nothing during
// rotation — a report in hand means "ready to commit", and the old key,
// envelopes and bundles remain fully intact until the caller swaps them.
type RotationReport struct {
	ReportID          string
	ProjectID         string
	NewKey            *ProjectKey
	OldKeyFingerprint string

	Bundles  []RotatedBundle
	Versions []RotatedVersion

	Envelopes      []*EnvelopeKey
	SkippedMembers []MemberID

	// Skipped lists historical versions that failed to re-encrypt
	// (corrupted or undecryptable). Each one degrades rollback for that
	// version only; blocking a security-critical rotation over an already
	// unreadable snapshot would be the worse trade.
	Skipped []*RotationItemError

	StartedAt  string
	FinishedAt string
}

// Summary renders the per-item outcome as "N of M items rotated".
func (r *RotationReport) Summary() string {
	rotated := len(r.Bundles) + len(r.Versions)
	total := rotated + len(r.Skipped)
	if len(r.Skipped) == 0 {
		return fmt.Sprintf("%d of %d items rotated", rotated, total)
	}
	ids := make([]string, 0, len(r.Skipped))
	for _, item := range r.Skipped {
		ids = append(ids, fmt.Sprintf("%s/%s", item.Environment, item.VersionID))
	}
	return fmt.Sprintf("%d of %d items rotated; skipped: %v", rotated, total, ids)
}

// rotationItem is a single unit of re-encryption work.
type rotationItem struct {
	environment string
	versionID   string // empty for the current bundle
	bundle      *SecretBundle
	createdAt   string
}

// Rotate replaces a project's symmetric key and re-protects every artifact
// derived from it: the current bundle of every environment, every retained
// historical version, and one fresh envelope per member holding a public key.
//
// Sequencing invariants:
//   - the new key is not used for any wrap or encryption until its
//     generation has fully completed;
//   - an item appears in the report only if its own decrypt-then-re-encrypt
//     round trip succeeded;
//   - version ordering and identity are preserved, so every version's
//     rollback target remains reachable after commit.
//
// Failure policy: a current bundle that cannot be re-encrypted aborts the
// whole rotation (ErrRotationAborted) — losing an environment's live
// secrets is never acceptable. A historical version that cannot be
// re-encrypted is recorded in Skipped and excluded; the rotation still
// succeeds with degraded rollback for that version only. A wrap failure
// for a member holding a registered public key also aborts: members
// without a key are the only ones skipped.
//
// Cancellation via ctx aborts with ErrRotationAborted. Because all output
// is staged in the report and the engine never writes, cancellation — at
// any point — leaves the old key, envelopes and bundles fully usable.
func (e *Engine) Rotate(ctx context.Context, projectID string, oldKey []byte) (*RotationReport, error) {
	if err := ValidateKey(oldKey); err != nil {
		return nil, err
	}
	startedAt := timecache.CachedTime().UTC().Format("2006-01-02T15:04:05.000000Z")

	members, err := e.roster.Members(ctx, projectID)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeRotation, "failed to enumerate project members")
		return nil, fmt.Errorf("%w: %w", ErrRotationAborted, richErr)
	}

	items, err := e.collectRotationItems(ctx, projectID)
	if err != nil {
		return nil, err
	}

	// Generate the new key only after enumeration succeeds, and before any
	// use. Key generation failing is a terminal error, not a per-item one.
	newKeyBytes, err := GenerateProjectKey()
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeRotation, "failed to generate replacement key")
		return nil, fmt.Errorf("%w: %w", ErrRotationAborted, richErr)
	}
	newKey := newProjectKey(newKeyBytes)

	report := &RotationReport{
		ReportID:          uuid.NewString(),
		ProjectID:         projectID,
		NewKey:            newKey,
		OldKeyFingerprint: KeyFingerprint(oldKey),
		StartedAt:         startedAt,
	}

	if err := e.reencryptItems(ctx, projectID, items, oldKey, newKeyBytes, report); err != nil {
		Zeroize(newKeyBytes)
		return nil, err
	}

	envelopes, skippedMembers, err := ShareWithAll(members, newKeyBytes)
	if err != nil {
		Zeroize(newKeyBytes)
		return nil, fmt.Errorf("%w: %w", ErrRotationAborted, err)
	}
	report.Envelopes, report.SkippedMembers = envelopes, skippedMembers
	report.FinishedAt = timecache.CachedTime().UTC().Format("2006-01-02T15:04:05.000000Z")

	skippedIDs := make([]string, 0, len(report.Skipped))
	for _, item := range report.Skipped {
		skippedIDs = append(skippedIDs, item.VersionID)
	}
	e.opts.Audit.Record(AuditEntry{
		Operation:      "rotate",
		ProjectID:      projectID,
		KeyFingerprint: newKey.Fingerprint,
		MembersCount:   len(report.Envelopes),
		ItemsCount:     len(report.Bundles) + len(report.Versions),
		SkippedItems:   skippedIDs,
	})
	return report, nil
}

// collectRotationItems enumerates every bundle and retained version that
// must be re-encrypted, preserving the store's version ordering.
func (e *Engine) collectRotationItems(ctx context.Context, projectID string) ([]rotationItem, error) {
	environments, err := e.store.Environments(ctx, projectID)
	if err != nil {
		richErr := goerrors.Wrap(err, ErrCodeRotation, "failed to enumerate environments")
		return nil, fmt.Errorf("%w: %w", ErrRotationAborted, richErr)
	}

	var items []rotationItem
	for _, env := range environments {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRotationAborted, err)
		}

		bundle, err := e.store.CurrentBundle(ctx, projectID, env)
		if err != nil {
			richErr := goerrors.Wrap(err, ErrCodeRotation, fmt.Sprintf("failed to fetch current bundle for %s", env))
			return nil, fmt.Errorf("%w: %w", ErrRotationAborted, richErr)
		}
		if bundle != nil {
			items = append(items, rotationItem{environment: env, bundle: bundle})
		}

		versions, err := e.store.Versions(ctx, projectID, env)
		if err != nil {
			richErr := goerrors.Wrap(err, ErrCodeRotation, fmt.Sprintf("failed to fetch versions for %s", env))
			return nil, fmt.Errorf("%w: %w", ErrRotationAborted, richErr)
		}
		for _, v := range versions {
			items = append(items, rotationItem{
				environment: env,
				versionID:   v.ID,
				bundle:      &v.Bundle,
				createdAt:   v.CreatedAt,
			})
		}
	}
	return items, nil
}

// reencryptItems runs the decrypt-old/re-encrypt-new round trip over all
// items with bounded parallelism. Each item is pure and stateless given its
// inputs, so workers share nothing but the semaphore; results land in
// per-index slots to keep output ordering equal to enumeration ordering.
func (e *Engine) reencryptItems(ctx context.Context, projectID string, items []rotationItem, oldKey, newKey []byte, report *RotationReport) error {
	type outcome struct {
		bundle *SecretBundle
		err    *RotationItemError
	}
	outcomes := make([]outcome, len(items))

	sem := make(chan struct{}, e.opts.Parallelism)
	var wg sync.WaitGroup
	for i := range items {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return fmt.Errorf("%w: %w", ErrRotationAborted, err)
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			rotated, err := reencryptBundle(items[i].bundle, oldKey, newKey)
			if err != nil {
				outcomes[i] = outcome{err: &RotationItemError{
					ProjectID:   projectID,
					Environment: items[i].environment,
					VersionID:   items[i].versionID,
					Err:         err,
				}}
				return
			}
			outcomes[i] = outcome{bundle: rotated}
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRotationAborted, err)
	}

	for i, out := range outcomes {
		item := items[i]
		if out.err != nil {
			if item.versionID == "" {
				// A live bundle that cannot round-trip means the old key is
				// wrong or the environment is corrupted; continuing would
				// silently drop current secrets.
				richErr := goerrors.Wrap(out.err, ErrCodeRotation, fmt.Sprintf("current bundle for %s failed re-encryption", item.environment))
				return fmt.Errorf("%w: %w", ErrRotationAborted, richErr)
			}
			report.Skipped = append(report.Skipped, out.err)
			continue
		}
		if item.versionID == "" {
			report.Bundles = append(report.Bundles, RotatedBundle{Environment: item.environment, Bundle: out.bundle})
			continue
		}
		report.Versions = append(report.Versions, RotatedVersion{
			Environment: item.environment,
			Version: &SecretVersion{
				ID:        item.versionID,
				Bundle:    *out.bundle,
				CreatedAt: item.createdAt,
			},
		})
	}
	return nil
}

// reencryptBundle performs one decrypt-then-re-encrypt round trip. The
// digest-first check inside DecryptSecrets applies here too, so corrupted
// transport and wrong-key failures stay distinguishable in item errors.
func reencryptBundle(bundle *SecretBundle, oldKey, newKey []byte) (*SecretBundle, error) {
	set, err := DecryptSecrets(bundle, oldKey)
	if err != nil {
		return nil, err
	}
	rotated, err := EncryptSecrets(set, newKey)
	if err != nil {
		return nil, err
	}
	return rotated, nil
}
