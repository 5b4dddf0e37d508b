// Package journal provides a tamper-evident operation journal using hash
// chaining. Every committed ledger operation appends one entry; each entry's
// hash covers the previous entry's hash, so any rewrite breaks the chain.
package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry is a single journal record.
type Entry struct {
	ID        string          `json:"id"`
	Timestamp string          `json:"timestamp"`
	Kind      string          `json:"kind"`
	PrevHash  string          `json:"prev_hash"`
	Payload   json.RawMessage `json:"payload"`
	Hash      string          `json:"hash"`
}

// Archive persists sealed entries. Archive failures never block the chain;
// the in-memory chain stays authoritative for verification.
type Archive interface {
	Append(e Entry) error
}

// Chain appends hash-linked entries. It satisfies the ledger's Recorder
// contract: Record must not fail the enclosing operation, so marshal and
// archive errors are swallowed after being counted.
type Chain struct {
	mu       sync.Mutex
	prevHash string
	entries  []Entry
	archive  Archive
	dropped  uint64
}

func NewChain(archive Archive) *Chain {
	return &Chain{
		prevHash: strings.Repeat("0", 64),
		archive:  archive,
	}
}

// Record seals payload into the chain under the given kind.
func (c *Chain) Record(kind string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e := Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Kind:      kind,
		PrevHash:  c.prevHash,
		Payload:   raw,
	}
	e.Hash = sealHash(e)
	c.prevHash = e.Hash
	c.entries = append(c.entries, e)

	if c.archive != nil {
		if err := c.archive.Append(e); err != nil {
			c.dropped++
		}
	}
}

// Entries returns a copy of the in-memory chain.
func (c *Chain) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Dropped reports how many entries failed to marshal or archive.
func (c *Chain) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

func sealHash(e Entry) string {
	input := fmt.Sprintf("%s|%s|%s|%s|%s", e.PrevHash, e.ID, e.Timestamp, e.Kind, e.Payload)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// Verify checks that entries form an unbroken, unmodified hash chain.
func Verify(entries []Entry) bool {
	for i, e := range entries {
		if i > 0 && e.PrevHash != entries[i-1].Hash {
			return false
		}
		if sealHash(e) != e.Hash {
			return false
		}
	}
	return true
}
