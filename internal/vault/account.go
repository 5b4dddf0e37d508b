package vault

import (
	"github.com/shopspring/decimal"

	"github.com/example/custody-infra/internal/asset"
)

// Account is a per-principal record. Accounts are created implicitly on first
// successful credit and never destroyed; balances may return to zero.
type Account struct {
	Principal string

	// Native is the native-coin balance in base units.
	Native decimal.Decimal

	// Tokens maps registered-asset handles to base-unit balances.
	Tokens map[asset.ID]decimal.Decimal

	// Stable is the stable-reference balance accumulated from swaps and
	// stable withdrawals, in the stable asset's base units.
	Stable decimal.Decimal

	// HasDeposited is the once-ever flag behind the principal counter. It
	// never resets, so a principal who drains to zero and returns is not
	// counted twice.
	HasDeposited bool
}

func newAccount(principal string) *Account {
	return &Account{
		Principal: principal,
		Native:    decimal.Zero,
		Tokens:    make(map[asset.ID]decimal.Decimal),
		Stable:    decimal.Zero,
	}
}

func (a *Account) clone() *Account {
	out := &Account{
		Principal:    a.Principal,
		Native:       a.Native,
		Stable:       a.Stable,
		HasDeposited: a.HasDeposited,
	}
	out.Tokens = make(map[asset.ID]decimal.Decimal, len(a.Tokens))
	for id, bal := range a.Tokens {
		out.Tokens[id] = bal
	}
	return out
}

// tokenBalance returns the registered-asset balance, zero if absent.
func (a *Account) tokenBalance(id asset.ID) decimal.Decimal {
	if bal, ok := a.Tokens[id]; ok {
		return bal
	}
	return decimal.Zero
}

// GlobalState aggregates the ledger-wide counters. It is mutated only inside
// the same atomic operation that changes balances.
type GlobalState struct {
	TotalDeposits        uint64          `json:"total_deposits"`
	TotalWithdrawals     uint64          `json:"total_withdrawals"`
	TotalPrincipals      uint64          `json:"total_principals"`
	TotalStableFromSwaps decimal.Decimal `json:"total_stable_from_swaps"`
}

func newGlobalState() GlobalState {
	return GlobalState{TotalStableFromSwaps: decimal.Zero}
}
