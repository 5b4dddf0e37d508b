package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/example/custody-infra/internal/asset"
	"github.com/example/custody-infra/internal/auth"
	"github.com/example/custody-infra/internal/oracle"
	"github.com/example/custody-infra/internal/security"
	"github.com/example/custody-infra/internal/vault"
)

// Vault is the ledger surface the handlers call.
type Vault interface {
	DepositNative(ctx context.Context, principal string, amount decimal.Decimal) (*vault.Receipt, error)
	DepositAsset(ctx context.Context, principal string, id asset.ID, amount decimal.Decimal) (*vault.Receipt, error)
	DepositArbitrary(ctx context.Context, principal string, assetIn asset.ID, amountIn, minOut decimal.Decimal, feeTier uint32) (*vault.Receipt, error)

	WithdrawNative(ctx context.Context, principal string, amount decimal.Decimal) (*vault.Receipt, error)
	WithdrawAsset(ctx context.Context, principal string, id asset.ID, amount decimal.Decimal) (*vault.Receipt, error)
	WithdrawStable(ctx context.Context, principal string, amount decimal.Decimal) (*vault.Receipt, error)

	AdminExtract(ctx context.Context, principal string, id asset.ID, amount decimal.Decimal, destination string) (*vault.Receipt, error)
	RegisterAsset(ctx context.Context, id asset.ID, decimals uint8) (*asset.Asset, error)
	UnregisterAsset(ctx context.Context, id asset.ID) error

	Balances(principal string) vault.BalanceSheet
	PrincipalValue(ctx context.Context, principal string) (decimal.Decimal, error)
	TotalValue(ctx context.Context) (decimal.Decimal, error)
	NativePrice(ctx context.Context) (oracle.Quote, error)
	AssetInfo(id asset.ID) (asset.Asset, error)
	Assets() []asset.Asset
	GlobalStats() vault.GlobalState
}

// principalOf resolves the ledger principal: the authenticated client ID.
func principalOf(r *http.Request) (string, bool) {
	ai, ok := auth.AuthInfoFromContext(r.Context())
	if !ok || ai.ClientID == "" {
		return "", false
	}
	return ai.ClientID, true
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// amount parses a schema-validated digit string. The pattern admits only
// digits, so a parse failure here is a programming error surfaced as 400.
func amount(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(raw)
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type assetAmountRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type swapRequest struct {
	AssetIn  string `json:"asset_in"`
	AmountIn string `json:"amount_in"`
	MinOut   string `json:"min_out"`
	FeeTier  uint32 `json:"fee_tier"`
}

type registerAssetRequest struct {
	Asset    string `json:"asset"`
	Decimals uint8  `json:"decimals"`
}

type extractRequest struct {
	Principal   string `json:"principal"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Destination string `json:"destination"`
}

func handleDepositNative(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOf(r)
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req amountRequest
		if err := decodeBody(r, &req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_request")
			return
		}
		amt, err := amount(req.Amount)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_amount")
			return
		}

		rcpt, err := v.DepositNative(r.Context(), principal, amt)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, rcpt)
	}
}

func handleDepositAsset(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOf(r)
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req assetAmountRequest
		if err := decodeBody(r, &req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_request")
			return
		}
		amt, err := amount(req.Amount)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_amount")
			return
		}

		rcpt, err := v.DepositAsset(r.Context(), principal, asset.ID(req.Asset), amt)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, rcpt)
	}
}

func handleDepositSwap(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOf(r)
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req swapRequest
		if err := decodeBody(r, &req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_request")
			return
		}
		amtIn, err := amount(req.AmountIn)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_amount")
			return
		}
		minOut, err := amount(req.MinOut)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_amount")
			return
		}

		rcpt, err := v.DepositArbitrary(r.Context(), principal, asset.ID(req.AssetIn), amtIn, minOut, req.FeeTier)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, rcpt)
	}
}

func handleWithdraw(v Vault, kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOf(r)
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		var rcpt *vault.Receipt
		var err error
		switch kind {
		case "native", "stable":
			var req amountRequest
			if err := decodeBody(r, &req); err != nil {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_request")
				return
			}
			amt, perr := amount(req.Amount)
			if perr != nil {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_amount")
				return
			}
			if kind == "native" {
				rcpt, err = v.WithdrawNative(r.Context(), principal, amt)
			} else {
				rcpt, err = v.WithdrawStable(r.Context(), principal, amt)
			}
		default:
			var req assetAmountRequest
			if err := decodeBody(r, &req); err != nil {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_request")
				return
			}
			amt, perr := amount(req.Amount)
			if perr != nil {
				security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_amount")
				return
			}
			rcpt, err = v.WithdrawAsset(r.Context(), principal, asset.ID(req.Asset), amt)
		}

		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, rcpt)
	}
}

func handleRegisterAsset(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerAssetRequest
		if err := decodeBody(r, &req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_request")
			return
		}

		a, err := v.RegisterAsset(r.Context(), asset.ID(req.Asset), req.Decimals)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, a)
	}
}

func handleUnregisterAsset(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := asset.ID(chi.URLParam(r, "id"))
		if err := v.UnregisterAsset(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleAdminExtract(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := decodeBody(r, &req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_request")
			return
		}
		amt, err := amount(req.Amount)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_amount")
			return
		}

		rcpt, err := v.AdminExtract(r.Context(), req.Principal, asset.ID(req.Asset), amt, req.Destination)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, rcpt)
	}
}

func handleBalances(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOf(r)
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		writeJSON(w, r, http.StatusOK, v.Balances(principal))
	}
}

type valueResponse struct {
	Principal string          `json:"principal,omitempty"`
	Canonical decimal.Decimal `json:"canonical"`
}

func handlePrincipalValue(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalOf(r)
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		val, err := v.PrincipalValue(r.Context(), principal)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, valueResponse{Principal: principal, Canonical: val})
	}
}

func handleTotalValue(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		val, err := v.TotalValue(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, valueResponse{Canonical: val})
	}
}

func handlePrice(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := v.NativePrice(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, q)
	}
}

func handleListAssets(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, v.Assets())
	}
}

func handleGetAsset(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := v.AssetInfo(asset.ID(chi.URLParam(r, "id")))
		if err != nil {
			security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
			return
		}
		writeJSON(w, r, http.StatusOK, a)
	}
}

func handleStats(v Vault) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, v.GlobalStats())
	}
}
