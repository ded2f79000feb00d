// Package ledger hash-chains committed transitions. Each entry's hash covers
// its predecessor's hash, so rewriting any stored row breaks verification
// from that point on.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/stake-plus/commons/src/shared/gov"
	"github.com/stake-plus/commons/src/store"
)

// GenesisHash is the PrevHash of the first entry.
const GenesisHash = "genesis"

// Event is a transition to be recorded.
type Event struct {
	Kind       string
	EntityType string
	EntityID   string
	Actor      string
	At         time.Time
	Data       any
}

// Entity types used in ledger entries.
const (
	EntityMember       = "member"
	EntityProposal     = "proposal"
	EntityConsent      = "consent"
	EntityRelationship = "relationship"
	EntityTreasury     = "treasury"
)

// Canonical encodes v as RFC 8785 canonical JSON.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return out, nil
}

// Seal builds the entry following prev (nil for the first entry).
// Timestamps are truncated to milliseconds to survive a DATETIME(3) column.
func Seal(prev *gov.LedgerEntry, ev Event) (gov.LedgerEntry, error) {
	payload, err := Canonical(ev.Data)
	if err != nil {
		return gov.LedgerEntry{}, fmt.Errorf("ledger payload %s: %w", ev.Kind, err)
	}

	entry := gov.LedgerEntry{
		Seq:        1,
		Kind:       ev.Kind,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Actor:      ev.Actor,
		Payload:    string(payload),
		PrevHash:   GenesisHash,
		CreatedAt:  ev.At.UTC().Truncate(time.Millisecond),
	}
	if prev != nil {
		entry.Seq = prev.Seq + 1
		entry.PrevHash = prev.Hash
	}

	entry.Hash, err = hashEntry(&entry)
	if err != nil {
		return gov.LedgerEntry{}, err
	}
	return entry, nil
}

func hashEntry(e *gov.LedgerEntry) (string, error) {
	raw, err := Canonical(struct {
		Seq        string          `json:"seq"`
		Kind       string          `json:"kind"`
		EntityType string          `json:"entityType"`
		EntityID   string          `json:"entityId"`
		Actor      string          `json:"actor"`
		Payload    json.RawMessage `json:"payload"`
		PrevHash   string          `json:"prev"`
		CreatedAt  string          `json:"createdAt"`
	}{
		Seq:        strconv.FormatUint(e.Seq, 10),
		Kind:       e.Kind,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Actor:      e.Actor,
		Payload:    json.RawMessage(e.Payload),
		PrevHash:   e.PrevHash,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("hash entry %d: %w", e.Seq, err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Append seals events after the current head and writes them through tx.
func Append(ctx context.Context, tx store.Tx, events ...Event) ([]gov.LedgerEntry, error) {
	if len(events) == 0 {
		return nil, nil
	}
	head, err := tx.LockLedgerHead(ctx)
	if err != nil && !errors.Is(err, gov.ErrNotFound) {
		return nil, fmt.Errorf("ledger head: %w", err)
	}

	out := make([]gov.LedgerEntry, 0, len(events))
	for _, ev := range events {
		entry, err := Seal(head, ev)
		if err != nil {
			return nil, err
		}
		if err := tx.AppendLedger(ctx, &entry); err != nil {
			return nil, fmt.Errorf("append ledger %s: %w", ev.Kind, err)
		}
		out = append(out, entry)
		head = &out[len(out)-1]
	}
	return out, nil
}

// Report is the outcome of Verify.
type Report struct {
	OK       bool   `json:"ok"`
	Checked  int    `json:"checked"`
	HeadSeq  uint64 `json:"headSeq"`
	HeadHash string `json:"headHash"`
	BrokenAt uint64 `json:"brokenAt,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Verify checks a contiguous run of entries. prevHash is the hash of the
// entry preceding entries[0] (GenesisHash when starting at seq 1).
func Verify(entries []gov.LedgerEntry, prevHash string) Report {
	rep := Report{OK: true, HeadHash: prevHash}
	for i := range entries {
		e := &entries[i]
		if e.PrevHash != prevHash {
			rep.OK = false
			rep.BrokenAt = e.Seq
			rep.Reason = fmt.Sprintf("chain broken: expected prev %s, got %s", prevHash, e.PrevHash)
			return rep
		}
		computed, err := hashEntry(e)
		if err != nil {
			rep.OK = false
			rep.BrokenAt = e.Seq
			rep.Reason = err.Error()
			return rep
		}
		if computed != e.Hash {
			rep.OK = false
			rep.BrokenAt = e.Seq
			rep.Reason = "hash mismatch"
			return rep
		}
		prevHash = e.Hash
		rep.Checked++
		rep.HeadSeq = e.Seq
		rep.HeadHash = e.Hash
	}
	return rep
}

// VerifyStore walks the whole ledger in pages.
func VerifyStore(ctx context.Context, r store.Reader, pageSize int) (Report, error) {
	if pageSize <= 0 {
		pageSize = 500
	}
	total := Report{OK: true, HeadHash: GenesisHash}
	var after uint64
	for {
		page, err := r.ListLedger(ctx, after, pageSize)
		if err != nil {
			return total, fmt.Errorf("list ledger after %d: %w", after, err)
		}
		if len(page) == 0 {
			return total, nil
		}
		rep := Verify(page, total.HeadHash)
		total.Checked += rep.Checked
		if !rep.OK {
			total.OK = false
			total.BrokenAt = rep.BrokenAt
			total.Reason = rep.Reason
			return total, nil
		}
		total.HeadSeq = rep.HeadSeq
		total.HeadHash = rep.HeadHash
		after = rep.HeadSeq
		if len(page) < pageSize {
			return total, nil
		}
	}
}
