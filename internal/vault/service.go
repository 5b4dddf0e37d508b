package vault

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/custody-infra/internal/asset"
	"github.com/example/custody-infra/internal/oracle"
)

// Config carries the immutable ledger constants. It is produced once at
// construction and never mutated afterwards.
type Config struct {
	// CapacityLimit is the maximum total custodial value, canonical units.
	CapacityLimit decimal.Decimal

	// WithdrawalLimit is the per-operation withdrawal ceiling, canonical units.
	WithdrawalLimit decimal.Decimal

	// StableAsset is the handle of the stable reference asset.
	StableAsset asset.ID

	// StableDecimals is the stable asset's native precision.
	StableDecimals uint8

	// SwapDeadline bounds how long a swap instruction may stay outstanding.
	SwapDeadline time.Duration
}

func (c Config) validate() error {
	if c.CapacityLimit.Sign() <= 0 {
		return fmt.Errorf("%w: capacity limit must be positive", asset.ErrInvalidConfiguration)
	}
	if c.WithdrawalLimit.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal limit must be positive", asset.ErrInvalidConfiguration)
	}
	if c.StableAsset == "" || c.StableAsset == asset.NativeID {
		return fmt.Errorf("%w: stable asset handle %q", asset.ErrInvalidConfiguration, c.StableAsset)
	}
	if err := asset.ValidateDecimals(c.StableDecimals); err != nil {
		return err
	}
	return nil
}

// Service coordinates the ledger, registry, oracle, custody, and router into
// atomic operations. Each external-facing operation is a single unit of work:
// it either commits all its effects or aborts with none. The gate below
// totally orders operations, so concurrent callers queue rather than fail;
// genuine nested re-entry is detected by a context marker and rejected rather
// than deadlocked.
type Service struct {
	cfg      Config
	ledger   *Ledger
	registry *asset.Registry
	oracle   *oracle.Adapter
	custody  Custodian
	router   Router
	store    Store
	recorder Recorder
	logger   *slog.Logger

	// gate serializes operations; mu protects state for readers while an
	// operation is in flight.
	gate sync.Mutex
	mu   sync.RWMutex
}

func NewService(cfg Config, registry *asset.Registry, orc *oracle.Adapter, custody Custodian, router Router, opts ...Option) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		ledger:   NewLedger(),
		registry: registry,
		oracle:   orc,
		custody:  custody,
		router:   router,
		store:    NopStore{},
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	if s.cfg.SwapDeadline <= 0 {
		s.cfg.SwapDeadline = DefaultSwapDeadline
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type Option func(*Service)

func WithStore(store Store) Option {
	return func(s *Service) { s.store = store }
}

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// RestoreFromStore seeds the registry and ledger from the durable store.
// Called once at startup, before the listener accepts operations; afterwards
// the in-memory ledger is authoritative again and the store goes back to
// being a write-through.
func (s *Service) RestoreFromStore(ctx context.Context) error {
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	assets, err := s.store.LoadAssets(ctx)
	if err != nil {
		return fmt.Errorf("restore assets: %w", err)
	}
	s.registry.Load(assets)

	balances, err := s.store.LoadBalances(ctx)
	if err != nil {
		return fmt.Errorf("restore balances: %w", err)
	}
	global, found, err := s.store.LoadGlobal(ctx)
	if err != nil {
		return fmt.Errorf("restore global state: %w", err)
	}
	if !found && len(balances) == 0 {
		return nil
	}
	s.ledger.load(balances, global, s.kindOf)
	return nil
}

// Receipt describes a committed balance change.
type Receipt struct {
	OperationID string          `json:"operation_id"`
	Principal   string          `json:"principal"`
	Asset       asset.ID        `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Canonical   decimal.Decimal `json:"canonical"`
	NewBalance  decimal.Decimal `json:"new_balance"`
}

// opContextKey marks every context handed to external collaborators while an
// operation is in flight.
type opContextKey struct{}

// begin acquires the operation gate. Distinct operations queue on the gate in
// arrival order; a nested call from inside an external collaborator carries
// the in-flight marker on its context and is rejected immediately instead of
// deadlocking on the gate it already holds.
func (s *Service) begin(ctx context.Context) (context.Context, func(), error) {
	if ctx.Value(opContextKey{}) != nil {
		return nil, nil, ErrReentrantCall
	}
	s.gate.Lock()
	s.mu.Lock()
	return context.WithValue(ctx, opContextKey{}, struct{}{}), func() {
		s.mu.Unlock()
		s.gate.Unlock()
	}, nil
}

// kindOf classifies an asset handle. The switch sites consuming the result
// are exhaustive over asset.Kind.
func (s *Service) kindOf(id asset.ID) asset.Kind {
	switch id {
	case asset.NativeID:
		return asset.KindNative
	case s.cfg.StableAsset:
		return asset.KindStable
	default:
		return asset.KindRegistered
	}
}

// canonicalValue prices an amount of the given asset in canonical units. The
// native coin goes through the oracle; registered assets and the stable asset
// are normalized by precision (registered assets carry no price feed and are
// valued at normalized face amount).
func (s *Service) canonicalValue(ctx context.Context, id asset.ID, amount decimal.Decimal) (decimal.Decimal, error) {
	switch s.kindOf(id) {
	case asset.KindNative:
		return s.oracle.ConvertNativeToCanonical(ctx, amount)
	case asset.KindRegistered:
		a, err := s.registry.Get(id)
		if err != nil {
			return decimal.Zero, err
		}
		return asset.ToCanonical(amount, a.Decimals), nil
	case asset.KindStable:
		return asset.ToCanonical(amount, s.cfg.StableDecimals), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown asset kind for %s", id)
	}
}

// totalCanonicalValue sums the canonical value of every asset class holding a
// nonzero aggregate balance: native, each registered asset, and the stable
// accumulator. The sum must stay complete: omitting a class would let that
// class grow past the cap unchecked.
func (s *Service) totalCanonicalValue(ctx context.Context) (decimal.Decimal, error) {
	total := decimal.Zero

	if s.ledger.nativeTotal.Sign() > 0 {
		v, err := s.oracle.ConvertNativeToCanonical(ctx, s.ledger.nativeTotal)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}

	for id, aggregate := range s.ledger.tokenTotals {
		if aggregate.Sign() <= 0 {
			continue
		}
		a, err := s.registry.Get(id)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(asset.ToCanonical(aggregate, a.Decimals))
	}

	if s.ledger.stableTotal.Sign() > 0 {
		total = total.Add(asset.ToCanonical(s.ledger.stableTotal, s.cfg.StableDecimals))
	}

	return total, nil
}

// assertWithinCapacity admits candidateIncrease canonical units only if the
// book stays under the capacity limit.
func (s *Service) assertWithinCapacity(ctx context.Context, candidateIncrease decimal.Decimal) error {
	total, err := s.totalCanonicalValue(ctx)
	if err != nil {
		return err
	}
	if total.Add(candidateIncrease).GreaterThan(s.cfg.CapacityLimit) {
		return fmt.Errorf("%w: total %s + candidate %s exceeds cap %s",
			ErrCapacityExceeded, total, candidateIncrease, s.cfg.CapacityLimit)
	}
	return nil
}

// assertWithinLimit enforces the per-operation withdrawal ceiling. Every
// withdrawal path goes through here; none is exempt.
func (s *Service) assertWithinLimit(amountCanonical decimal.Decimal) error {
	if amountCanonical.GreaterThan(s.cfg.WithdrawalLimit) {
		return fmt.Errorf("%w: %s exceeds per-operation limit %s",
			ErrLimitExceeded, amountCanonical, s.cfg.WithdrawalLimit)
	}
	return nil
}

// DepositNative credits the caller's native balance with value attached to
// the request.
func (s *Service) DepositNative(ctx context.Context, principal string, amount decimal.Decimal) (*Receipt, error) {
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	canonical, err := s.oracle.ConvertNativeToCanonical(ctx, amount)
	if err != nil {
		return nil, err
	}
	if err := s.assertWithinCapacity(ctx, canonical); err != nil {
		return nil, err
	}

	if err := s.custody.TransferIn(ctx, asset.NativeID, principal, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	newBalance := s.ledger.creditNative(principal, amount)
	rcpt := s.receipt(principal, asset.NativeID, amount, canonical, newBalance)
	s.commitDeposit(ctx, rcpt)
	return rcpt, nil
}

// DepositAsset credits a registered fungible asset after transfer-in.
func (s *Service) DepositAsset(ctx context.Context, principal string, id asset.ID, amount decimal.Decimal) (*Receipt, error) {
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if s.kindOf(id) != asset.KindRegistered || !s.registry.IsSupported(id) {
		return nil, fmt.Errorf("%w: %s", asset.ErrUnsupportedAsset, id)
	}

	rec, err := s.registry.Get(id)
	if err != nil {
		return nil, err
	}

	canonical := asset.ToCanonical(amount, rec.Decimals)
	if err := s.assertWithinCapacity(ctx, canonical); err != nil {
		return nil, err
	}

	if err := s.custody.TransferIn(ctx, id, principal, amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	newBalance := s.ledger.creditToken(principal, id, amount)
	s.registry.RecordDeposit(id)
	s.persistAsset(ctx, id)
	rcpt := s.receipt(principal, id, amount, canonical, newBalance)
	s.commitDeposit(ctx, rcpt)
	return rcpt, nil
}

// DepositArbitrary pulls an arbitrary swappable token into custody, swaps it
// to the stable reference asset through the external router, and credits the
// measured output. One pass, no retries; any failure unwinds the whole call.
func (s *Service) DepositArbitrary(ctx context.Context, principal string, assetIn asset.ID, amountIn, minOut decimal.Decimal, feeTier uint32) (*Receipt, error) {
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if amountIn.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if minOut.Sign() < 0 {
		return nil, ErrZeroAmount
	}
	switch s.kindOf(assetIn) {
	case asset.KindNative, asset.KindStable:
		return nil, fmt.Errorf("%w: %s is not a swappable deposit asset", asset.ErrUnsupportedAsset, assetIn)
	case asset.KindRegistered:
		// arbitrary tokens need no registry record; the swap output is what
		// gets accounted
	}

	snap := s.ledger.snapshot()
	exec := newSwapExecution(principal, assetIn, amountIn, minOut)

	if err := s.custody.TransferIn(ctx, assetIn, principal, amountIn); err != nil {
		exec.fail()
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	// Bounded allowance: exactly amountIn, never unlimited.
	if err := s.custody.Approve(ctx, assetIn, s.router.Spender(), amountIn); err != nil {
		return nil, s.abortSwap(ctx, exec, snap, fmt.Errorf("%w: approve: %v", ErrSwapFailed, err))
	}
	exec.advance(SwapApproved)

	preBalance, err := s.custody.BalanceOf(ctx, s.cfg.StableAsset)
	if err != nil {
		return nil, s.abortSwap(ctx, exec, snap, fmt.Errorf("%w: pre-swap balance: %v", ErrSwapFailed, err))
	}

	deadline := time.Now().Add(s.cfg.SwapDeadline)
	swapCtx, cancel := context.WithDeadline(ctx, deadline)
	err = s.router.Swap(swapCtx, SwapOrder{
		AssetIn:   assetIn,
		AssetOut:  s.cfg.StableAsset,
		AmountIn:  amountIn,
		FeeTier:   feeTier,
		Recipient: principal,
		Deadline:  deadline,
	})
	cancel()
	if err != nil {
		return nil, s.abortSwap(ctx, exec, snap, fmt.Errorf("%w: %v", ErrSwapFailed, err))
	}
	exec.advance(SwapExecuted)

	// Measure what actually arrived; router-reported values are not trusted.
	postBalance, err := s.custody.BalanceOf(ctx, s.cfg.StableAsset)
	if err != nil {
		return nil, s.abortSwap(ctx, exec, snap, fmt.Errorf("%w: post-swap balance: %v", ErrSwapFailed, err))
	}
	amountOut := postBalance.Sub(preBalance)
	exec.AmountOut = amountOut
	exec.advance(SwapVerified)

	if amountOut.LessThan(minOut) {
		return nil, s.abortSwap(ctx, exec, snap, fmt.Errorf("%w: received %s, minimum %s", ErrSlippageExceeded, amountOut, minOut))
	}

	canonical := asset.ToCanonical(amountOut, s.cfg.StableDecimals)
	if err := s.assertWithinCapacity(ctx, canonical); err != nil {
		return nil, s.abortSwap(ctx, exec, snap, err)
	}

	newBalance := s.ledger.creditStable(principal, amountOut, true)
	exec.advance(SwapCredited)

	rcpt := &Receipt{
		OperationID: exec.ID,
		Principal:   principal,
		Asset:       s.cfg.StableAsset,
		Amount:      amountOut,
		Canonical:   canonical,
		NewBalance:  newBalance,
	}
	s.recorder.Record(EventSwap, SwapEvent{
		OperationID: exec.ID,
		Principal:   principal,
		AssetIn:     assetIn,
		AssetOut:    s.cfg.StableAsset,
		AmountIn:    amountIn,
		AmountOut:   amountOut,
	})
	s.persistBalance(ctx, principal, s.cfg.StableAsset, newBalance)
	s.logger.Info("swap_deposit",
		"operation_id", exec.ID,
		"principal", principal,
		"asset_in", assetIn,
		"amount_in", amountIn.String(),
		"amount_out", amountOut.String(),
	)
	return rcpt, nil
}

// abortSwap unwinds a failed pipeline pass: ledger state is restored, the
// router allowance is revoked, and the source asset goes back to the
// principal so net balances are unchanged. A compensation step that itself
// fails strands the input outside any recorded balance, so it is journaled
// for operator reconciliation, not just logged.
func (s *Service) abortSwap(ctx context.Context, exec *SwapExecution, snap *Ledger, cause error) error {
	exec.fail()
	s.ledger.restore(snap)

	if err := s.custody.Approve(ctx, exec.AssetIn, s.router.Spender(), decimal.Zero); err != nil {
		s.recordUnwindFailure(exec, "revoke_allowance", err)
	}
	if err := s.custody.TransferOut(ctx, exec.AssetIn, exec.Principal, exec.AmountIn); err != nil {
		s.recordUnwindFailure(exec, "return_input", err)
	}

	s.logger.Warn("swap_aborted", "operation_id", exec.ID, "principal", exec.Principal, "error", cause)
	return cause
}

func (s *Service) recordUnwindFailure(exec *SwapExecution, step string, err error) {
	s.recorder.Record(EventSwapUnwind, SwapUnwindEvent{
		OperationID: exec.ID,
		Principal:   exec.Principal,
		AssetIn:     exec.AssetIn,
		AmountIn:    exec.AmountIn,
		Step:        step,
		Error:       err.Error(),
	})
	s.logger.Error("swap_unwind_failed", "operation_id", exec.ID, "step", step, "error", err)
}

// WithdrawNative debits the caller's native balance and releases the coins.
func (s *Service) WithdrawNative(ctx context.Context, principal string, amount decimal.Decimal) (*Receipt, error) {
	return s.withdraw(ctx, principal, asset.NativeID, amount)
}

// WithdrawAsset debits a registered-asset balance. Deregistered assets stay
// withdrawable: only the registry record must exist, not the supported flag.
func (s *Service) WithdrawAsset(ctx context.Context, principal string, id asset.ID, amount decimal.Decimal) (*Receipt, error) {
	if s.kindOf(id) != asset.KindRegistered {
		return nil, fmt.Errorf("%w: %s", asset.ErrUnsupportedAsset, id)
	}
	return s.withdraw(ctx, principal, id, amount)
}

// WithdrawStable debits the stable-reference balance accumulated from swaps.
func (s *Service) WithdrawStable(ctx context.Context, principal string, amount decimal.Decimal) (*Receipt, error) {
	return s.withdraw(ctx, principal, s.cfg.StableAsset, amount)
}

func (s *Service) withdraw(ctx context.Context, principal string, id asset.ID, amount decimal.Decimal) (*Receipt, error) {
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	canonical, err := s.canonicalValue(ctx, id, amount)
	if err != nil {
		return nil, err
	}
	if err := s.assertWithinLimit(canonical); err != nil {
		return nil, err
	}

	snap := s.ledger.snapshot()

	var newBalance decimal.Decimal
	switch s.kindOf(id) {
	case asset.KindNative:
		newBalance, err = s.ledger.debitNative(principal, amount)
	case asset.KindRegistered:
		newBalance, err = s.ledger.debitToken(principal, id, amount)
	case asset.KindStable:
		newBalance, err = s.ledger.debitStable(principal, id, amount)
	}
	if err != nil {
		return nil, err
	}

	// Balance already reduced: a reentrant or failing transfer cannot observe
	// the stale, over-credited balance.
	if err := s.custody.TransferOut(ctx, id, principal, amount); err != nil {
		s.ledger.restore(snap)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	if s.kindOf(id) == asset.KindRegistered {
		s.registry.RecordWithdrawal(id)
		s.persistAsset(ctx, id)
	}

	rcpt := s.receipt(principal, id, amount, canonical, newBalance)
	s.recorder.Record(EventWithdraw, WithdrawEvent{
		OperationID: rcpt.OperationID,
		Principal:   principal,
		Asset:       id,
		Amount:      amount,
		Canonical:   canonical,
		NewBalance:  newBalance,
	})
	s.persistBalance(ctx, principal, id, newBalance)
	s.logger.Info("withdraw",
		"operation_id", rcpt.OperationID,
		"principal", principal,
		"asset", id,
		"amount", amount.String(),
		"canonical", canonical.String(),
	)
	return rcpt, nil
}

// AdminExtract is the privileged incident-response path. It debits the
// attributed principal by exactly the extracted amount in the same atomic
// call that moves funds, keeping recorded balances reconciled with custody.
func (s *Service) AdminExtract(ctx context.Context, principal string, id asset.ID, amount decimal.Decimal, destination string) (*Receipt, error) {
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if destination == "" {
		return nil, fmt.Errorf("%w: empty destination", asset.ErrInvalidConfiguration)
	}

	snap := s.ledger.snapshot()
	kind := s.kindOf(id)
	if err := s.ledger.extract(principal, id, kind, amount); err != nil {
		return nil, err
	}

	if err := s.custody.TransferOut(ctx, id, destination, amount); err != nil {
		s.ledger.restore(snap)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	sheet := s.ledger.balanceSheet(principal)
	var newBalance decimal.Decimal
	switch kind {
	case asset.KindNative:
		newBalance = sheet.Native
	case asset.KindRegistered:
		newBalance = sheet.Tokens[id]
	case asset.KindStable:
		newBalance = sheet.Stable
	}

	rcpt := s.receipt(principal, id, amount, decimal.Zero, newBalance)
	s.recorder.Record(EventAdminExtract, AdminEvent{
		OperationID: rcpt.OperationID,
		Asset:       id,
		Amount:      amount,
		Destination: destination,
		Principal:   principal,
	})
	s.persistBalance(ctx, principal, id, newBalance)
	s.logger.Warn("admin_extract",
		"operation_id", rcpt.OperationID,
		"asset", id,
		"amount", amount.String(),
		"destination", destination,
		"principal", principal,
	)
	return rcpt, nil
}

// RegisterAsset adds a fungible asset to the registry.
func (s *Service) RegisterAsset(ctx context.Context, id asset.ID, decimals uint8) (*asset.Asset, error) {
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	if s.kindOf(id) != asset.KindRegistered {
		return nil, fmt.Errorf("%w: %q is a reserved handle", asset.ErrInvalidConfiguration, id)
	}

	a, err := s.registry.Register(id, decimals)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(EventAssetChange, AssetChangeEvent{Asset: id, Decimals: decimals, Action: "register"})
	s.persistAsset(ctx, id)
	s.logger.Info("asset_registered", "asset", id, "decimals", decimals)
	return a, nil
}

// UnregisterAsset blocks new deposits of the asset. Standing balances remain
// withdrawable.
func (s *Service) UnregisterAsset(ctx context.Context, id asset.ID) error {
	ctx, done, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := s.registry.Unregister(id); err != nil {
		return err
	}

	a, _ := s.registry.Get(id)
	s.recorder.Record(EventAssetChange, AssetChangeEvent{Asset: id, Decimals: a.Decimals, Action: "unregister"})
	s.persistAsset(ctx, id)
	s.logger.Info("asset_unregistered", "asset", id)
	return nil
}

// Balances returns the principal's per-asset balances.
func (s *Service) Balances(principal string) BalanceSheet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.balanceSheet(principal)
}

// PrincipalValue prices one principal's holdings in canonical units.
func (s *Service) PrincipalValue(ctx context.Context, principal string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sheet := s.ledger.balanceSheet(principal)
	total := decimal.Zero

	if sheet.Native.Sign() > 0 {
		v, err := s.oracle.ConvertNativeToCanonical(ctx, sheet.Native)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	for id, bal := range sheet.Tokens {
		if bal.Sign() <= 0 {
			continue
		}
		a, err := s.registry.Get(id)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(asset.ToCanonical(bal, a.Decimals))
	}
	if sheet.Stable.Sign() > 0 {
		total = total.Add(asset.ToCanonical(sheet.Stable, s.cfg.StableDecimals))
	}
	return total, nil
}

// TotalValue prices the whole book in canonical units.
func (s *Service) TotalValue(ctx context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalCanonicalValue(ctx)
}

// NativePrice exposes the validated oracle quote.
func (s *Service) NativePrice(ctx context.Context) (oracle.Quote, error) {
	return s.oracle.NativePrice(ctx)
}

// AssetInfo returns registry metadata for a handle.
func (s *Service) AssetInfo(id asset.ID) (asset.Asset, error) {
	return s.registry.Get(id)
}

// Assets lists all registry records.
func (s *Service) Assets() []asset.Asset {
	return s.registry.List()
}

// GlobalStats returns the aggregate counters.
func (s *Service) GlobalStats() GlobalState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.Global()
}

// CheckSolvency cross-checks recorded totals against custody for one asset.
func (s *Service) CheckSolvency(ctx context.Context, id asset.ID) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	custodial, err := s.custody.BalanceOf(ctx, id)
	if err != nil {
		return err
	}
	return s.ledger.checkSolvency(id, custodial, s.kindOf(id))
}

func (s *Service) receipt(principal string, id asset.ID, amount, canonical, newBalance decimal.Decimal) *Receipt {
	return &Receipt{
		OperationID: uuid.NewString(),
		Principal:   principal,
		Asset:       id,
		Amount:      amount,
		Canonical:   canonical,
		NewBalance:  newBalance,
	}
}

func (s *Service) commitDeposit(ctx context.Context, rcpt *Receipt) {
	s.recorder.Record(EventDeposit, DepositEvent{
		OperationID: rcpt.OperationID,
		Principal:   rcpt.Principal,
		Asset:       rcpt.Asset,
		Amount:      rcpt.Amount,
		Canonical:   rcpt.Canonical,
		NewBalance:  rcpt.NewBalance,
	})
	s.persistBalance(ctx, rcpt.Principal, rcpt.Asset, rcpt.NewBalance)
	s.logger.Info("deposit",
		"operation_id", rcpt.OperationID,
		"principal", rcpt.Principal,
		"asset", rcpt.Asset,
		"amount", rcpt.Amount.String(),
		"canonical", rcpt.Canonical.String(),
	)
}

// persistAsset writes the current registry record through to the store so
// the lifetime counters do not drift from memory between registrations.
func (s *Service) persistAsset(ctx context.Context, id asset.ID) {
	a, err := s.registry.Get(id)
	if err != nil {
		return
	}
	if err := s.store.UpsertAsset(ctx, a); err != nil {
		s.logger.Error("store_upsert_asset_failed", "asset", id, "error", err)
	}
}

func (s *Service) persistBalance(ctx context.Context, principal string, id asset.ID, balance decimal.Decimal) {
	if err := s.store.UpsertBalance(ctx, principal, id, balance); err != nil {
		s.logger.Error("store_upsert_balance_failed", "principal", principal, "asset", id, "error", err)
	}
	if err := s.store.SaveGlobal(ctx, s.ledger.Global()); err != nil {
		s.logger.Error("store_save_global_failed", "error", err)
	}
}
