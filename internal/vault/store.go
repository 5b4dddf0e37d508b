package vault

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/example/custody-infra/internal/asset"
)

// Store records committed ledger state. The in-memory ledger is authoritative
// for operation semantics; the store is a durable write-through applied after
// commit, so store failures are surfaced in logs rather than unwinding an
// operation whose external effects already happened. The Load methods are
// read once at startup to rebuild the ledger after a restart.
type Store interface {
	UpsertAsset(ctx context.Context, a asset.Asset) error
	UpsertBalance(ctx context.Context, principal string, id asset.ID, balance decimal.Decimal) error
	SaveGlobal(ctx context.Context, g GlobalState) error

	LoadAssets(ctx context.Context) ([]asset.Asset, error)
	LoadBalances(ctx context.Context) (map[string]map[asset.ID]decimal.Decimal, error)
	// LoadGlobal reports found=false when no state has ever been saved.
	LoadGlobal(ctx context.Context) (g GlobalState, found bool, err error)
}

// NopStore discards writes and loads nothing. Used by tests and by
// deployments without a database.
type NopStore struct{}

func (NopStore) UpsertAsset(context.Context, asset.Asset) error { return nil }

func (NopStore) UpsertBalance(context.Context, string, asset.ID, decimal.Decimal) error {
	return nil
}

func (NopStore) SaveGlobal(context.Context, GlobalState) error { return nil }

func (NopStore) LoadAssets(context.Context) ([]asset.Asset, error) { return nil, nil }

func (NopStore) LoadBalances(context.Context) (map[string]map[asset.ID]decimal.Decimal, error) {
	return nil, nil
}

func (NopStore) LoadGlobal(context.Context) (GlobalState, bool, error) {
	return newGlobalState(), false, nil
}
