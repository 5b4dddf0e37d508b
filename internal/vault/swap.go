package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/custody-infra/internal/asset"
)

// DefaultSwapDeadline bounds how long a pending swap instruction may stay
// outstanding at the router.
const DefaultSwapDeadline = 5 * time.Minute

// SwapOrder is the instruction handed to the external router. The router's
// reported result is never trusted: output is measured by custody delta.
type SwapOrder struct {
	AssetIn   asset.ID        `json:"asset_in"`
	AssetOut  asset.ID        `json:"asset_out"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	FeeTier   uint32          `json:"fee_tier"`
	Recipient string          `json:"recipient"`
	Deadline  time.Time       `json:"deadline"`
}

// Router is the opaque external swap capability.
type Router interface {
	// Swap executes the order. Any error means the instruction did not
	// settle; the enclosing deposit aborts as a whole.
	Swap(ctx context.Context, order SwapOrder) error

	// Spender identifies the party that must hold the allowance.
	Spender() string
}

// SwapState is one step of the per-call execution pipeline. A call moves
// strictly forward through Received, Approved, Executed, Verified, Credited,
// or drops to Failed at any step; there are no retries.
type SwapState string

const (
	SwapReceived SwapState = "RECEIVED"
	SwapApproved SwapState = "APPROVED"
	SwapExecuted SwapState = "EXECUTED"
	SwapVerified SwapState = "VERIFIED"
	SwapCredited SwapState = "CREDITED"
	SwapFailed   SwapState = "FAILED"
)

// swapTransitions is the single source of truth for the pipeline order.
var swapTransitions = map[SwapState]SwapState{
	SwapReceived: SwapApproved,
	SwapApproved: SwapExecuted,
	SwapExecuted: SwapVerified,
	SwapVerified: SwapCredited,
}

// SwapExecution tracks one pass through the pipeline for observability.
type SwapExecution struct {
	ID        string          `json:"id"`
	Principal string          `json:"principal"`
	AssetIn   asset.ID        `json:"asset_in"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	MinOut    decimal.Decimal `json:"min_out"`
	AmountOut decimal.Decimal `json:"amount_out"`
	State     SwapState       `json:"state"`
	StartedAt time.Time       `json:"started_at"`
}

func newSwapExecution(principal string, assetIn asset.ID, amountIn, minOut decimal.Decimal) *SwapExecution {
	return &SwapExecution{
		ID:        uuid.NewString(),
		Principal: principal,
		AssetIn:   assetIn,
		AmountIn:  amountIn,
		MinOut:    minOut,
		AmountOut: decimal.Zero,
		State:     SwapReceived,
		StartedAt: time.Now().UTC(),
	}
}

// advance moves the execution to the next pipeline state. A skip is a
// programming error, so it panics rather than returning an error.
func (e *SwapExecution) advance(to SwapState) {
	next, ok := swapTransitions[e.State]
	if !ok || next != to {
		panic(fmt.Sprintf("swap execution %s: illegal transition %s -> %s", e.ID, e.State, to))
	}
	e.State = to
}

func (e *SwapExecution) fail() {
	e.State = SwapFailed
}

// HTTPRouter submits swap orders to an external routing service.
type HTTPRouter struct {
	baseURL    string
	spender    string
	httpClient *http.Client
}

func NewHTTPRouter(baseURL, spender string) *HTTPRouter {
	return &HTTPRouter{
		baseURL: baseURL,
		spender: spender,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (r *HTTPRouter) Spender() string { return r.spender }

func (r *HTTPRouter) Swap(ctx context.Context, order SwapOrder) error {
	body, err := json.Marshal(order)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/swap", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("swap router returned status %d", resp.StatusCode)
	}
	return nil
}
