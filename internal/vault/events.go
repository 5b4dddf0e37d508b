package vault

import (
	"github.com/shopspring/decimal"

	"github.com/example/custody-infra/internal/asset"
)

// Journal kinds, one per observable state change.
const (
	EventDeposit      = "deposit"
	EventWithdraw     = "withdraw"
	EventSwap         = "swap"
	EventSwapUnwind   = "swap_unwind"
	EventAdminExtract = "admin_extract"
	EventAssetChange  = "asset_change"
)

// Recorder receives one event per committed state change. Implementations
// must not fail the enclosing operation; the hash-chained journal in
// pkg/journal is the production implementation.
type Recorder interface {
	Record(kind string, payload any)
}

type nopRecorder struct{}

func (nopRecorder) Record(string, any) {}

// DepositEvent and WithdrawEvent carry the same shape: the mutated balance
// and the canonical value that the guards saw.
type DepositEvent struct {
	OperationID string          `json:"operation_id"`
	Principal   string          `json:"principal"`
	Asset       asset.ID        `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Canonical   decimal.Decimal `json:"canonical"`
	NewBalance  decimal.Decimal `json:"new_balance"`
}

type WithdrawEvent struct {
	OperationID string          `json:"operation_id"`
	Principal   string          `json:"principal"`
	Asset       asset.ID        `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Canonical   decimal.Decimal `json:"canonical"`
	NewBalance  decimal.Decimal `json:"new_balance"`
}

type SwapEvent struct {
	OperationID string          `json:"operation_id"`
	Principal   string          `json:"principal"`
	AssetIn     asset.ID        `json:"asset_in"`
	AssetOut    asset.ID        `json:"asset_out"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	AmountOut   decimal.Decimal `json:"amount_out"`
}

// SwapUnwindEvent records a compensation step that failed while aborting a
// swap. The input amount is then stranded outside any recorded balance, so
// operators need the journal entry to reconcile it manually.
type SwapUnwindEvent struct {
	OperationID string          `json:"operation_id"`
	Principal   string          `json:"principal"`
	AssetIn     asset.ID        `json:"asset_in"`
	AmountIn    decimal.Decimal `json:"amount_in"`
	Step        string          `json:"step"`
	Error       string          `json:"error"`
}

type AdminEvent struct {
	OperationID string          `json:"operation_id"`
	Asset       asset.ID        `json:"asset"`
	Amount      decimal.Decimal `json:"amount"`
	Destination string          `json:"destination"`
	Principal   string          `json:"principal"`
}

type AssetChangeEvent struct {
	Asset    asset.ID `json:"asset"`
	Decimals uint8    `json:"decimals"`
	Action   string   `json:"action"`
}
