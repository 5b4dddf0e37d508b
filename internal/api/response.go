package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/custody-infra/internal/asset"
	"github.com/example/custody-infra/internal/oracle"
	"github.com/example/custody-infra/internal/security"
	"github.com/example/custody-infra/internal/vault"
)

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	cid := security.CorrelationIDFromContext(r.Context())
	if cid != "" {
		w.Header().Set(security.CorrelationIDHeader, cid)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps ledger errors onto HTTP statuses. Client mistakes are 4xx,
// upstream collaborator failures are 5xx, and anything unrecognized stays an
// opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, vault.ErrZeroAmount):
		security.WriteJSONError(w, r, http.StatusBadRequest, "zero_amount")
	case errors.Is(err, asset.ErrInvalidConfiguration):
		security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_configuration")
	case errors.Is(err, asset.ErrUnsupportedAsset):
		security.WriteJSONError(w, r, http.StatusBadRequest, "unsupported_asset")
	case errors.Is(err, asset.ErrAlreadySupported):
		security.WriteJSONError(w, r, http.StatusConflict, "asset_exists")
	case errors.Is(err, vault.ErrInsufficientBalance):
		security.WriteJSONError(w, r, http.StatusConflict, "insufficient_balance")
	case errors.Is(err, vault.ErrCapacityExceeded):
		security.WriteJSONError(w, r, http.StatusConflict, "capacity_exceeded")
	case errors.Is(err, vault.ErrLimitExceeded):
		security.WriteJSONError(w, r, http.StatusConflict, "limit_exceeded")
	case errors.Is(err, vault.ErrSlippageExceeded):
		security.WriteJSONError(w, r, http.StatusConflict, "slippage_exceeded")
	case errors.Is(err, vault.ErrReentrantCall):
		security.WriteJSONError(w, r, http.StatusConflict, "operation_in_progress")
	case errors.Is(err, oracle.ErrStalePrice), errors.Is(err, oracle.ErrInvalidPrice):
		security.WriteJSONError(w, r, http.StatusServiceUnavailable, "price_unavailable")
	case errors.Is(err, vault.ErrTransferFailed):
		security.WriteJSONError(w, r, http.StatusBadGateway, "transfer_failed")
	case errors.Is(err, vault.ErrSwapFailed):
		security.WriteJSONError(w, r, http.StatusBadGateway, "swap_failed")
	default:
		security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
	}
}
