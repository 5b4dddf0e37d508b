package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/custody-infra/internal/asset"
)

// Custodian moves actual asset units in and out of vault custody and reports
// what the vault physically holds. It is an external, adversarial
// collaborator: the ledger mutates its own state before calling out, and
// measures swap output by custody delta rather than trusting reported values.
type Custodian interface {
	// TransferIn pulls amount of the asset from the principal into custody.
	TransferIn(ctx context.Context, id asset.ID, from string, amount decimal.Decimal) error

	// TransferOut releases amount of the asset from custody to a recipient.
	TransferOut(ctx context.Context, id asset.ID, to string, amount decimal.Decimal) error

	// BalanceOf reports the custodial balance of the asset in base units.
	BalanceOf(ctx context.Context, id asset.ID) (decimal.Decimal, error)

	// Approve grants a spender a bounded allowance over custodial funds.
	// Callers never grant unlimited allowances; revocation is Approve(0).
	Approve(ctx context.Context, id asset.ID, spender string, amount decimal.Decimal) error
}

// HTTPCustodian speaks to the custody gateway over HTTP.
type HTTPCustodian struct {
	baseURL    string
	httpClient *http.Client
}

func NewHTTPCustodian(baseURL string) *HTTPCustodian {
	return &HTTPCustodian{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type transferRequest struct {
	Asset  asset.ID `json:"asset"`
	Party  string   `json:"party"`
	Amount string   `json:"amount"`
}

type approveRequest struct {
	Asset   asset.ID `json:"asset"`
	Spender string   `json:"spender"`
	Amount  string   `json:"amount"`
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

func (c *HTTPCustodian) TransferIn(ctx context.Context, id asset.ID, from string, amount decimal.Decimal) error {
	return c.post(ctx, "/custody/transfer-in", transferRequest{Asset: id, Party: from, Amount: amount.String()})
}

func (c *HTTPCustodian) TransferOut(ctx context.Context, id asset.ID, to string, amount decimal.Decimal) error {
	return c.post(ctx, "/custody/transfer-out", transferRequest{Asset: id, Party: to, Amount: amount.String()})
}

func (c *HTTPCustodian) Approve(ctx context.Context, id asset.ID, spender string, amount decimal.Decimal) error {
	return c.post(ctx, "/custody/approve", approveRequest{Asset: id, Spender: spender, Amount: amount.String()})
}

func (c *HTTPCustodian) BalanceOf(ctx context.Context, id asset.ID) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/custody/balance/"+string(id), nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("custody gateway returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, err
	}

	var out balanceResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return decimal.Zero, fmt.Errorf("decode custody balance: %w", err)
	}
	return decimal.NewFromString(out.Balance)
}

func (c *HTTPCustodian) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("custody gateway returned status %d for %s", resp.StatusCode, path)
	}
	return nil
}
