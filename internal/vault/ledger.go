package vault

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/custody-infra/internal/asset"
)

// Ledger is the authoritative mapping from (principal, asset) to balance and
// the only component permitted to mutate balances. All methods run under the
// service's operation lock; the Ledger itself carries no locking.
type Ledger struct {
	accounts map[string]*Account
	global   GlobalState

	// Aggregate balances per asset class. Maintained on every credit and
	// debit so the capacity guard can price the whole book without walking
	// accounts.
	nativeTotal decimal.Decimal
	tokenTotals map[asset.ID]decimal.Decimal
	stableTotal decimal.Decimal
}

func NewLedger() *Ledger {
	return &Ledger{
		accounts:    make(map[string]*Account),
		global:      newGlobalState(),
		nativeTotal: decimal.Zero,
		tokenTotals: make(map[asset.ID]decimal.Decimal),
		stableTotal: decimal.Zero,
	}
}

// account returns the principal's record, creating it on first touch.
func (l *Ledger) account(principal string) *Account {
	acct, ok := l.accounts[principal]
	if !ok {
		acct = newAccount(principal)
		l.accounts[principal] = acct
	}
	return acct
}

// creditNative increases the principal's native balance.
func (l *Ledger) creditNative(principal string, amount decimal.Decimal) decimal.Decimal {
	acct := l.account(principal)
	acct.Native = acct.Native.Add(amount)
	l.nativeTotal = l.nativeTotal.Add(amount)
	l.recordDeposit(acct)
	return acct.Native
}

// creditToken increases a registered-asset balance.
func (l *Ledger) creditToken(principal string, id asset.ID, amount decimal.Decimal) decimal.Decimal {
	acct := l.account(principal)
	bal := acct.tokenBalance(id).Add(amount)
	acct.Tokens[id] = bal
	l.tokenTotals[id] = l.tokenTotal(id).Add(amount)
	l.recordDeposit(acct)
	return bal
}

// creditStable increases the stable-reference balance. fromSwap adds to the
// swap accumulator as well.
func (l *Ledger) creditStable(principal string, amount decimal.Decimal, fromSwap bool) decimal.Decimal {
	acct := l.account(principal)
	acct.Stable = acct.Stable.Add(amount)
	l.stableTotal = l.stableTotal.Add(amount)
	if fromSwap {
		l.global.TotalStableFromSwaps = l.global.TotalStableFromSwaps.Add(amount)
	}
	l.recordDeposit(acct)
	return acct.Stable
}

// debitNative decreases the principal's native balance, failing on shortfall.
func (l *Ledger) debitNative(principal string, amount decimal.Decimal) (decimal.Decimal, error) {
	acct := l.account(principal)
	if acct.Native.LessThan(amount) {
		return decimal.Zero, &InsufficientBalanceError{Principal: principal, Asset: asset.NativeID, Have: acct.Native, Need: amount}
	}
	acct.Native = acct.Native.Sub(amount)
	l.nativeTotal = l.nativeTotal.Sub(amount)
	l.global.TotalWithdrawals++
	return acct.Native, nil
}

func (l *Ledger) debitToken(principal string, id asset.ID, amount decimal.Decimal) (decimal.Decimal, error) {
	acct := l.account(principal)
	bal := acct.tokenBalance(id)
	if bal.LessThan(amount) {
		return decimal.Zero, &InsufficientBalanceError{Principal: principal, Asset: id, Have: bal, Need: amount}
	}
	bal = bal.Sub(amount)
	acct.Tokens[id] = bal
	l.tokenTotals[id] = l.tokenTotal(id).Sub(amount)
	l.global.TotalWithdrawals++
	return bal, nil
}

func (l *Ledger) debitStable(principal string, id asset.ID, amount decimal.Decimal) (decimal.Decimal, error) {
	acct := l.account(principal)
	if acct.Stable.LessThan(amount) {
		return decimal.Zero, &InsufficientBalanceError{Principal: principal, Asset: id, Have: acct.Stable, Need: amount}
	}
	acct.Stable = acct.Stable.Sub(amount)
	l.stableTotal = l.stableTotal.Sub(amount)
	l.global.TotalWithdrawals++
	return acct.Stable, nil
}

// extract debits the attributed principal for an admin extraction. It is the
// reconciliation half of the extraction: custody and recorded balances move
// by the same amount in the same operation. Extractions are not user
// withdrawals, so the withdrawal counter stays untouched.
func (l *Ledger) extract(principal string, id asset.ID, kind asset.Kind, amount decimal.Decimal) error {
	acct := l.account(principal)
	switch kind {
	case asset.KindNative:
		if acct.Native.LessThan(amount) {
			return &InsufficientBalanceError{Principal: principal, Asset: id, Have: acct.Native, Need: amount}
		}
		acct.Native = acct.Native.Sub(amount)
		l.nativeTotal = l.nativeTotal.Sub(amount)
	case asset.KindRegistered:
		bal := acct.tokenBalance(id)
		if bal.LessThan(amount) {
			return &InsufficientBalanceError{Principal: principal, Asset: id, Have: bal, Need: amount}
		}
		acct.Tokens[id] = bal.Sub(amount)
		l.tokenTotals[id] = l.tokenTotal(id).Sub(amount)
	case asset.KindStable:
		if acct.Stable.LessThan(amount) {
			return &InsufficientBalanceError{Principal: principal, Asset: id, Have: acct.Stable, Need: amount}
		}
		acct.Stable = acct.Stable.Sub(amount)
		l.stableTotal = l.stableTotal.Sub(amount)
	default:
		return fmt.Errorf("unknown asset kind %v", kind)
	}
	return nil
}

// recordDeposit bumps the deposit counter and counts the principal exactly
// once ever, keyed on the explicit flag rather than balance equality.
func (l *Ledger) recordDeposit(acct *Account) {
	l.global.TotalDeposits++
	if !acct.HasDeposited {
		acct.HasDeposited = true
		l.global.TotalPrincipals++
	}
}

func (l *Ledger) tokenTotal(id asset.ID) decimal.Decimal {
	if t, ok := l.tokenTotals[id]; ok {
		return t
	}
	return decimal.Zero
}

// Global returns a copy of the aggregate counters.
func (l *Ledger) Global() GlobalState {
	return l.global
}

// snapshot deep-copies the full ledger state for all-or-nothing rollback.
func (l *Ledger) snapshot() *Ledger {
	snap := &Ledger{
		accounts:    make(map[string]*Account, len(l.accounts)),
		global:      l.global,
		nativeTotal: l.nativeTotal,
		tokenTotals: make(map[asset.ID]decimal.Decimal, len(l.tokenTotals)),
		stableTotal: l.stableTotal,
	}
	for principal, acct := range l.accounts {
		snap.accounts[principal] = acct.clone()
	}
	for id, total := range l.tokenTotals {
		snap.tokenTotals[id] = total
	}
	return snap
}

// load rebuilds accounts and per-class aggregates from persisted rows. A
// principal with any persisted row was necessarily counted when the row was
// first written, so the once-ever flag is set on every restored account.
func (l *Ledger) load(balances map[string]map[asset.ID]decimal.Decimal, global GlobalState, kindOf func(asset.ID) asset.Kind) {
	fresh := NewLedger()
	fresh.global = global
	for principal, held := range balances {
		acct := fresh.account(principal)
		acct.HasDeposited = true
		for id, bal := range held {
			switch kindOf(id) {
			case asset.KindNative:
				acct.Native = bal
				fresh.nativeTotal = fresh.nativeTotal.Add(bal)
			case asset.KindRegistered:
				acct.Tokens[id] = bal
				fresh.tokenTotals[id] = fresh.tokenTotal(id).Add(bal)
			case asset.KindStable:
				acct.Stable = bal
				fresh.stableTotal = fresh.stableTotal.Add(bal)
			}
		}
	}
	l.restore(fresh)
}

// restore discards current state in favor of a snapshot.
func (l *Ledger) restore(snap *Ledger) {
	l.accounts = snap.accounts
	l.global = snap.global
	l.nativeTotal = snap.nativeTotal
	l.tokenTotals = snap.tokenTotals
	l.stableTotal = snap.stableTotal
}

// BalanceSheet is the per-principal view exposed by queries.
type BalanceSheet struct {
	Principal string                       `json:"principal"`
	Native    decimal.Decimal              `json:"native"`
	Tokens    map[asset.ID]decimal.Decimal `json:"tokens"`
	Stable    decimal.Decimal              `json:"stable"`
}

// balanceSheet returns a copy of the principal's balances. Unknown principals
// read as all-zero, same as an account that drained to zero.
func (l *Ledger) balanceSheet(principal string) BalanceSheet {
	sheet := BalanceSheet{
		Principal: principal,
		Native:    decimal.Zero,
		Tokens:    make(map[asset.ID]decimal.Decimal),
		Stable:    decimal.Zero,
	}
	acct, ok := l.accounts[principal]
	if !ok {
		return sheet
	}
	sheet.Native = acct.Native
	sheet.Stable = acct.Stable
	for id, bal := range acct.Tokens {
		sheet.Tokens[id] = bal
	}
	return sheet
}

// checkSolvency asserts that recorded entitlements never exceed what custody
// physically holds for the given asset. Used by tests and the admin surface.
func (l *Ledger) checkSolvency(id asset.ID, custodial decimal.Decimal, kind asset.Kind) error {
	var recorded decimal.Decimal
	switch kind {
	case asset.KindNative:
		recorded = l.nativeTotal
	case asset.KindRegistered:
		recorded = l.tokenTotal(id)
	case asset.KindStable:
		recorded = l.stableTotal
	default:
		return fmt.Errorf("unknown asset kind %v", kind)
	}
	if recorded.GreaterThan(custodial) {
		return fmt.Errorf("solvency violated for %s: recorded %s exceeds custodial %s", id, recorded, custodial)
	}
	return nil
}
