package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	a, err := r.Register("usdc", 6)
	require.NoError(t, err)
	assert.Equal(t, ID("usdc"), a.ID)
	assert.Equal(t, uint8(6), a.Decimals)
	assert.True(t, a.Supported)

	// duplicate registration
	_, err = r.Register("usdc", 6)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadySupported)

	// precision out of range
	_, err = r.Register("weird", 19)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	// the native handle is reserved
	_, err = r.Register(NativeID, 18)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestRegistry_UnregisterKeepsRecord(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("wbtc", 8)
	require.NoError(t, err)

	require.NoError(t, r.Unregister("wbtc"))
	assert.False(t, r.IsSupported("wbtc"))

	// the record survives deregistration so balances stay withdrawable
	a, err := r.Get("wbtc")
	require.NoError(t, err)
	assert.Equal(t, uint8(8), a.Decimals)

	err = r.Unregister("ghost")
	assert.ErrorIs(t, err, ErrUnsupportedAsset)
}

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register("usdt", 6)
	require.NoError(t, err)

	r.RecordDeposit("usdt")
	r.RecordDeposit("usdt")
	r.RecordWithdrawal("usdt")

	a, err := r.Get("usdt")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), a.Deposits)
	assert.Equal(t, uint64(1), a.Withdrawals)
}
