package journal

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/custody-infra/internal/crypto"
)

type depositPayload struct {
	Principal string `json:"principal"`
	Amount    string `json:"amount"`
}

func TestChainVerifies(t *testing.T) {
	chain := NewChain(nil)

	chain.Record("deposit", depositPayload{Principal: "acct-1", Amount: "1000000"})
	chain.Record("withdraw", depositPayload{Principal: "acct-1", Amount: "400000"})
	chain.Record("admin_extract", depositPayload{Principal: "acct-1", Amount: "100000"})

	entries := chain.Entries()
	require.Len(t, entries, 3)
	assert.True(t, Verify(entries))

	// Each entry links to the one before it.
	assert.Equal(t, entries[0].Hash, entries[1].PrevHash)
	assert.Equal(t, entries[1].Hash, entries[2].PrevHash)
}

func TestChainDetectsTampering(t *testing.T) {
	chain := NewChain(nil)
	chain.Record("deposit", depositPayload{Principal: "acct-1", Amount: "1000000"})
	chain.Record("deposit", depositPayload{Principal: "acct-2", Amount: "2000000"})
	chain.Record("withdraw", depositPayload{Principal: "acct-1", Amount: "500000"})

	entries := chain.Entries()
	require.True(t, Verify(entries))

	// Rewritten payload.
	tampered := chain.Entries()
	tampered[1].Payload = []byte(`{"principal":"acct-2","amount":"9000000"}`)
	assert.False(t, Verify(tampered))

	// Forged hash.
	tampered = chain.Entries()
	tampered[1].Hash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	assert.False(t, Verify(tampered))

	// Broken link.
	tampered = chain.Entries()
	tampered[2].PrevHash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	assert.False(t, Verify(tampered))

	// Relabeled kind.
	tampered = chain.Entries()
	tampered[0].Kind = "withdraw"
	assert.False(t, Verify(tampered))
}

func TestEmptyChainVerifies(t *testing.T) {
	assert.True(t, Verify(nil))
}

func TestUnmarshalablePayloadDropped(t *testing.T) {
	chain := NewChain(nil)
	chain.Record("deposit", func() {}) // functions don't marshal

	assert.Empty(t, chain.Entries())
	assert.Equal(t, uint64(1), chain.Dropped())
}

func TestSQLiteArchiveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	archive, err := NewSQLiteArchive(path)
	require.NoError(t, err)
	defer archive.Close()

	chain := NewChain(archive)
	chain.Record("deposit", depositPayload{Principal: "acct-1", Amount: "1000000"})
	chain.Record("swap", depositPayload{Principal: "acct-1", Amount: "750000"})
	require.Equal(t, uint64(0), chain.Dropped())

	loaded, err := archive.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.True(t, Verify(loaded))
	assert.Equal(t, "deposit", loaded[0].Kind)
	assert.Equal(t, "swap", loaded[1].Kind)
}

func TestSQLiteArchiveSealedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	sealer, err := crypto.NewSealer(bytes.Repeat([]byte{0x42}, crypto.KeySize))
	require.NoError(t, err)

	archive, err := NewSQLiteArchive(path, WithSealer(sealer))
	require.NoError(t, err)
	defer archive.Close()

	chain := NewChain(archive)
	chain.Record("deposit", depositPayload{Principal: "acct-1", Amount: "1000000"})
	require.Equal(t, uint64(0), chain.Dropped())

	// Unsealed payloads verify against the chain hashes.
	loaded, err := archive.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, Verify(loaded))
	assert.Contains(t, string(loaded[0].Payload), "acct-1")

	// An archive without the key cannot read the payloads.
	blind, err := NewSQLiteArchive(path)
	require.NoError(t, err)
	defer blind.Close()
	raw, err := blind.Load()
	require.NoError(t, err)
	assert.NotContains(t, string(raw[0].Payload), "acct-1")
}
