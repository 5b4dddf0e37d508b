// Package oracle wraps the external native-coin price source. Every
// conversion re-fetches and re-validates the quote: nothing is cached, so the
// staleness exposure of an operation is bounded by the window itself and
// never by a quote left over from an earlier operation.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/custody-infra/internal/asset"
)

var (
	// ErrInvalidPrice is returned when the source reports a zero or negative
	// price.
	ErrInvalidPrice = errors.New("invalid price")

	// ErrStalePrice is returned when the quote is older than the staleness
	// window. The operation fails closed; there is no fallback value.
	ErrStalePrice = errors.New("stale price")
)

// DefaultStalenessWindow is the maximum quote age accepted by the adapter.
const DefaultStalenessWindow = time.Hour

// Quote is a point-in-time price observation. Quotes are never persisted.
type Quote struct {
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Source produces the latest native-coin quote from an external feed.
type Source interface {
	Latest(ctx context.Context) (Quote, error)
}

// Adapter validates quotes and converts native-coin amounts into canonical
// USD units.
type Adapter struct {
	source         Source
	nativeDecimals uint8
	feedDecimals   uint8
	staleness      time.Duration
	now            func() time.Time
}

func NewAdapter(source Source, nativeDecimals, feedDecimals uint8, staleness time.Duration) *Adapter {
	if staleness <= 0 {
		staleness = DefaultStalenessWindow
	}
	return &Adapter{
		source:         source,
		nativeDecimals: nativeDecimals,
		feedDecimals:   feedDecimals,
		staleness:      staleness,
		now:            time.Now,
	}
}

// NativePrice fetches the latest quote and validates sign and freshness.
func (a *Adapter) NativePrice(ctx context.Context) (Quote, error) {
	q, err := a.source.Latest(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch native price: %w", err)
	}

	if q.Price.Sign() <= 0 {
		return Quote{}, fmt.Errorf("%w: %s", ErrInvalidPrice, q.Price)
	}

	if age := a.now().Sub(q.UpdatedAt); age > a.staleness {
		return Quote{}, fmt.Errorf("%w: quote is %s old, window is %s", ErrStalePrice, age.Truncate(time.Second), a.staleness)
	}

	return q, nil
}

// ConvertNativeToCanonical converts a native-coin base-unit amount into
// canonical units:
//
//	amount * price / 10^(nativeDecimals + feedDecimals - 6)
//
// The division floors, matching the normalizer's truncation discipline.
func (a *Adapter) ConvertNativeToCanonical(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	q, err := a.NativePrice(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	scale := int32(a.nativeDecimals) + int32(a.feedDecimals) - int32(asset.CanonicalDecimals)
	divisor := decimal.New(1, scale)
	return amount.Mul(q.Price).DivRound(divisor, 16).Floor(), nil
}
