package vault

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/custody-infra/internal/asset"
	"github.com/example/custody-infra/internal/oracle"
)

const arbToken = asset.ID("arb-token")

func TestDepositArbitrarySwapsAndCredits(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.router.fill = dec(9_500_000) // 9.5 stable out

	rcpt, err := rig.svc.DepositArbitrary(ctx, testPrincipal, arbToken, dec(10_000_000), dec(9_000_000), 3000)
	require.NoError(t, err)

	// Credit is the measured custody delta, not a router-reported figure.
	assert.Equal(t, testStable, rcpt.Asset)
	assert.True(t, rcpt.Amount.Equal(dec(9_500_000)))
	assert.True(t, rcpt.NewBalance.Equal(dec(9_500_000)))

	sheet := rig.svc.Balances(testPrincipal)
	assert.True(t, sheet.Stable.Equal(dec(9_500_000)))

	stats := rig.svc.GlobalStats()
	assert.True(t, stats.TotalStableFromSwaps.Equal(dec(9_500_000)))
	assert.Equal(t, uint64(1), stats.TotalDeposits)

	// The allowance was exactly the input and the router consumed it fully.
	assert.True(t, rig.router.lastOrder.AmountIn.Equal(dec(10_000_000)))
	assert.True(t, rig.custody.allowance(arbToken, testSpender).IsZero())

	require.NoError(t, rig.svc.CheckSolvency(ctx, testStable))
}

func TestDepositArbitraryRejectsNativeAndStable(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	_, err := rig.svc.DepositArbitrary(ctx, testPrincipal, asset.NativeID, dec(100), decimal.Zero, 3000)
	assert.ErrorIs(t, err, asset.ErrUnsupportedAsset)

	_, err = rig.svc.DepositArbitrary(ctx, testPrincipal, testStable, dec(100), decimal.Zero, 3000)
	assert.ErrorIs(t, err, asset.ErrUnsupportedAsset)
}

func TestSwapSlippageAborts(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.router.fill = dec(8_000_000) // below the 9.0 minimum

	_, err := rig.svc.DepositArbitrary(ctx, testPrincipal, arbToken, dec(10_000_000), dec(9_000_000), 3000)
	require.ErrorIs(t, err, ErrSlippageExceeded)

	// Nothing credited, allowance revoked, input returned to the principal.
	assert.True(t, rig.svc.Balances(testPrincipal).Stable.IsZero())
	assert.True(t, rig.svc.GlobalStats().TotalStableFromSwaps.IsZero())
	assert.True(t, rig.custody.allowance(arbToken, testSpender).IsZero())

	require.Len(t, rig.custody.transfersOut, 1)
	assert.Equal(t, arbToken, rig.custody.transfersOut[0].Asset)
	assert.Equal(t, testPrincipal, rig.custody.transfersOut[0].Party)
	assert.True(t, rig.custody.transfersOut[0].Amount.Equal(dec(10_000_000)))
}

func TestSwapRouterFailureAborts(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.router.err = errors.New("route exhausted")

	_, err := rig.svc.DepositArbitrary(ctx, testPrincipal, arbToken, dec(10_000_000), dec(1), 3000)
	require.ErrorIs(t, err, ErrSwapFailed)

	// One pass, no retries.
	assert.Equal(t, 1, rig.router.calls)
	assert.True(t, rig.svc.Balances(testPrincipal).Stable.IsZero())

	// Unwind returned the input asset.
	require.Len(t, rig.custody.transfersOut, 1)
	assert.Equal(t, testPrincipal, rig.custody.transfersOut[0].Party)
}

func TestSwapTransferInFailureLeavesNoTrace(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.custody.transferInErr = errors.New("pull rejected")

	_, err := rig.svc.DepositArbitrary(ctx, testPrincipal, arbToken, dec(10_000_000), dec(1), 3000)
	require.ErrorIs(t, err, ErrTransferFailed)

	// Nothing to unwind: no allowance was granted and nothing moved.
	assert.Equal(t, 0, rig.router.calls)
	assert.True(t, rig.custody.allowance(arbToken, testSpender).IsZero())
	assert.Empty(t, rig.custody.transfersOut)
}

func TestSwapCapacityExceededAborts(t *testing.T) {
	rig := newTestRig(t, func(c *Config) {
		c.CapacityLimit = dec(5_000_000) // 5 canonical units
	})
	ctx := context.Background()

	rig.router.fill = dec(9_000_000) // would land 9 canonical into a 5-unit cap

	_, err := rig.svc.DepositArbitrary(ctx, testPrincipal, arbToken, dec(10_000_000), dec(1), 3000)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	// Swap output is already in custody, but no entitlement was recorded and
	// the input went back to the principal.
	assert.True(t, rig.svc.Balances(testPrincipal).Stable.IsZero())
	require.Len(t, rig.custody.transfersOut, 1)
	assert.Equal(t, arbToken, rig.custody.transfersOut[0].Asset)
}

type captureRecorder struct {
	kinds    []string
	payloads []any
}

func (r *captureRecorder) Record(kind string, payload any) {
	r.kinds = append(r.kinds, kind)
	r.payloads = append(r.payloads, payload)
}

func TestSwapUnwindFailureJournaled(t *testing.T) {
	source := &stubSource{quote: oracle.Quote{
		Price:     decimal.NewFromInt(2_000_000),
		UpdatedAt: time.Now(),
	}}
	custody := newFakeCustodian()
	router := &fakeRouter{custody: custody}
	rec := &captureRecorder{}

	svc, err := NewService(Config{
		CapacityLimit:   dec(100_000_000),
		WithdrawalLimit: dec(10_000_000),
		StableAsset:     testStable,
		StableDecimals:  6,
	}, asset.NewRegistry(), oracle.NewAdapter(source, 6, 6, time.Hour), custody, router, WithRecorder(rec))
	require.NoError(t, err)

	router.fill = dec(8_000_000) // below the 9.0 minimum
	custody.transferOutErr = errors.New("return rejected")

	_, err = svc.DepositArbitrary(context.Background(), testPrincipal, arbToken, dec(10_000_000), dec(9_000_000), 3000)
	require.ErrorIs(t, err, ErrSlippageExceeded)

	// The stranded input must leave a journal record, not just a log line.
	var unwinds []SwapUnwindEvent
	for i, kind := range rec.kinds {
		if kind == EventSwapUnwind {
			unwinds = append(unwinds, rec.payloads[i].(SwapUnwindEvent))
		}
	}
	require.Len(t, unwinds, 1)
	assert.Equal(t, "return_input", unwinds[0].Step)
	assert.Equal(t, testPrincipal, unwinds[0].Principal)
	assert.Equal(t, arbToken, unwinds[0].AssetIn)
	assert.True(t, unwinds[0].AmountIn.Equal(dec(10_000_000)))
	assert.NotEmpty(t, unwinds[0].Error)
}

func TestSwapDeadlinePropagatedToOrder(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	rig.router.fill = dec(1_000_000)

	_, err := rig.svc.DepositArbitrary(ctx, testPrincipal, arbToken, dec(1_000_000), dec(1), 500)
	require.NoError(t, err)

	assert.False(t, rig.router.lastOrder.Deadline.IsZero())
	assert.Equal(t, uint32(500), rig.router.lastOrder.FeeTier)
	assert.Equal(t, testStable, rig.router.lastOrder.AssetOut)
}

func TestSwapExecutionTransitions(t *testing.T) {
	exec := newSwapExecution(testPrincipal, arbToken, dec(100), dec(90))
	require.Equal(t, SwapReceived, exec.State)

	exec.advance(SwapApproved)
	exec.advance(SwapExecuted)
	exec.advance(SwapVerified)
	exec.advance(SwapCredited)
	assert.Equal(t, SwapCredited, exec.State)
}

func TestSwapExecutionPanicsOnSkippedState(t *testing.T) {
	exec := newSwapExecution(testPrincipal, arbToken, dec(100), dec(90))

	assert.Panics(t, func() {
		exec.advance(SwapExecuted) // skips APPROVED
	})
}

func TestSwapExecutionFailFromAnyState(t *testing.T) {
	exec := newSwapExecution(testPrincipal, arbToken, dec(100), dec(90))
	exec.advance(SwapApproved)
	exec.fail()
	assert.Equal(t, SwapFailed, exec.State)

	assert.Panics(t, func() {
		exec.advance(SwapExecuted) // no transitions out of FAILED
	})
}
