package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/example/custody-infra/internal/asset"
)

// PostgresStore is the durable write-through behind the in-memory ledger.
// Every write runs in a SERIALIZABLE transaction and retries on
// serialization failure (SQLSTATE 40001).
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const storeMaxRetries = 3

// withTx runs fn inside a SERIALIZABLE read-write transaction with a query
// deadline, retrying serialization failures with linear backoff.
func (ps *PostgresStore) withTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	var lastErr error
	for attempt := 0; attempt < storeMaxRetries; attempt++ {
		lastErr = ps.runTx(ctx, fn)
		if lastErr == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(lastErr, &pgErr) && pgErr.Code == "40001" {
			time.Sleep(time.Duration(attempt+1) * 10 * time.Millisecond)
			continue
		}
		return lastErr
	}
	return fmt.Errorf("store transaction failed after %d retries: %w", storeMaxRetries, lastErr)
}

func (ps *PostgresStore) runTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := ps.pool.Acquire(queryCtx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.BeginTx(queryCtx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(queryCtx)

	if err := fn(queryCtx, tx); err != nil {
		return err
	}

	if err := tx.Commit(queryCtx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (ps *PostgresStore) UpsertAsset(ctx context.Context, a asset.Asset) error {
	return ps.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO assets (handle, decimals, supported, deposits, withdrawals)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (handle) DO UPDATE SET
				supported   = EXCLUDED.supported,
				deposits    = EXCLUDED.deposits,
				withdrawals = EXCLUDED.withdrawals
		`, string(a.ID), int16(a.Decimals), a.Supported, int64(a.Deposits), int64(a.Withdrawals))
		if err != nil {
			return fmt.Errorf("failed to upsert asset %s: %w", a.ID, err)
		}
		return nil
	})
}

func (ps *PostgresStore) UpsertBalance(ctx context.Context, principal string, id asset.ID, balance decimal.Decimal) error {
	return ps.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO balances (principal, asset, balance, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (principal, asset) DO UPDATE SET
				balance    = EXCLUDED.balance,
				updated_at = now()
		`, principal, string(id), balance.String())
		if err != nil {
			return fmt.Errorf("failed to upsert balance %s/%s: %w", principal, id, err)
		}
		return nil
	})
}

func (ps *PostgresStore) SaveGlobal(ctx context.Context, g GlobalState) error {
	return ps.withTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO global_state (id, total_deposits, total_withdrawals, total_principals, total_stable_from_swaps, updated_at)
			VALUES (1, $1, $2, $3, $4, now())
			ON CONFLICT (id) DO UPDATE SET
				total_deposits          = EXCLUDED.total_deposits,
				total_withdrawals       = EXCLUDED.total_withdrawals,
				total_principals        = EXCLUDED.total_principals,
				total_stable_from_swaps = EXCLUDED.total_stable_from_swaps,
				updated_at              = now()
		`, int64(g.TotalDeposits), int64(g.TotalWithdrawals), int64(g.TotalPrincipals), g.TotalStableFromSwaps.String())
		if err != nil {
			return fmt.Errorf("failed to save global state: %w", err)
		}
		return nil
	})
}

// LoadAssets reads every persisted registry record.
func (ps *PostgresStore) LoadAssets(ctx context.Context) ([]asset.Asset, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := ps.pool.Query(queryCtx, `
		SELECT handle, decimals, supported, deposits, withdrawals FROM assets
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var out []asset.Asset
	for rows.Next() {
		var (
			handle                string
			decimals              int16
			supported             bool
			deposits, withdrawals int64
		)
		if err := rows.Scan(&handle, &decimals, &supported, &deposits, &withdrawals); err != nil {
			return nil, fmt.Errorf("failed to scan asset row: %w", err)
		}
		out = append(out, asset.Asset{
			ID:          asset.ID(handle),
			Decimals:    uint8(decimals),
			Supported:   supported,
			Deposits:    uint64(deposits),
			Withdrawals: uint64(withdrawals),
		})
	}
	return out, rows.Err()
}

// LoadGlobal reads the aggregate counters. found is false when the service
// has never committed an operation.
func (ps *PostgresStore) LoadGlobal(ctx context.Context) (GlobalState, bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var (
		deposits, withdrawals, principals int64
		stableFromSwaps                   string
	)
	err := ps.pool.QueryRow(queryCtx, `
		SELECT total_deposits, total_withdrawals, total_principals, total_stable_from_swaps
		FROM global_state WHERE id = 1
	`).Scan(&deposits, &withdrawals, &principals, &stableFromSwaps)
	if errors.Is(err, pgx.ErrNoRows) {
		return newGlobalState(), false, nil
	}
	if err != nil {
		return GlobalState{}, false, fmt.Errorf("failed to load global state: %w", err)
	}

	stable, err := decimal.NewFromString(stableFromSwaps)
	if err != nil {
		return GlobalState{}, false, fmt.Errorf("corrupt stable-from-swaps counter: %w", err)
	}
	return GlobalState{
		TotalDeposits:        uint64(deposits),
		TotalWithdrawals:     uint64(withdrawals),
		TotalPrincipals:      uint64(principals),
		TotalStableFromSwaps: stable,
	}, true, nil
}

// LoadBalances reads every persisted balance row, used at startup to rebuild
// the in-memory ledger.
func (ps *PostgresStore) LoadBalances(ctx context.Context) (map[string]map[asset.ID]decimal.Decimal, error) {
	queryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := ps.pool.Query(queryCtx, `
		SELECT principal, asset, balance FROM balances
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string]map[asset.ID]decimal.Decimal)
	for rows.Next() {
		var principal, id, raw string
		if err := rows.Scan(&principal, &id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan balance row: %w", err)
		}
		bal, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt balance for %s/%s: %w", principal, id, err)
		}
		if _, ok := out[principal]; !ok {
			out[principal] = make(map[asset.ID]decimal.Decimal)
		}
		out[principal][asset.ID(id)] = bal
	}
	return out, rows.Err()
}

func (ps *PostgresStore) Close() {
	ps.pool.Close()
}
