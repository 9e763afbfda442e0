// audit.go: Best-effort JSONL audit trail for key lifecycle operations.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package dotveil

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/agilira/go-timecache"
)

// AuditEntry is a single audit record. Entries carry fingerprints and
// counts, never key material or plaintext: the trail is as safe to read
// as the store itself.
type AuditEntry struct {
	Timestamp string `json:"ts"` // RFC3339 with microseconds.
	Operation string `json:"op"` // establish, rotate.

	ProjectID      string `json:"project_id,omitempty"`
	KeyFingerprint string `json:"key_fingerprint,omitempty"`
	MembersCount   int    `json:"members_count,omitempty"`

	// Rotation details.
	ItemsCount   int      `json:"items_count,omitempty"`
	SkippedItems []string `json:"skipped_items,omitempty"`
}

// AuditTrail appends JSON Lines records to a file. Writes are best effort:
// a key operation must never fail because its audit record could not be
// written, so Record swallows I/O errors. A nil *AuditTrail is a valid
// no-op trail, which lets callers hold one without a nil check.
type AuditTrail struct {
	mu   sync.Mutex
	path string
}

// NewAuditTrail creates a trail appending to path. The file is created on
// first Record, not here.
func NewAuditTrail(path string) *AuditTrail {
	return &AuditTrail{path: path}
}

// Record appends one entry, stamping the timestamp if unset.
func (t *AuditTrail) Record(entry AuditEntry) {
	if t == nil || t.path == "" {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = timecache.CachedTime().UTC().Format("2006-01-02T15:04:05.000000Z")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// #nosec G306 -- the trail holds no secrets and is meant to be shared.
	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = f.Write(append(data, '\n'))
}

// Entries reads back every well-formed record in the trail. Malformed
// lines are skipped, matching the forgiving write side.
func (t *AuditTrail) Entries() ([]AuditEntry, error) {
	if t == nil || t.path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(t.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []AuditEntry
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			line := data[start:i]
			start = i + 1
			if len(line) == 0 {
				continue
			}
			var entry AuditEntry
			if err := json.Unmarshal(line, &entry); err != nil {
				continue
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}
