package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	quote Quote
	err   error
	calls int
}

func (s *stubSource) Latest(ctx context.Context) (Quote, error) {
	s.calls++
	return s.quote, s.err
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNativePrice_Valid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &stubSource{quote: Quote{Price: dec("200000000000"), UpdatedAt: now.Add(-time.Minute)}}

	a := NewAdapter(src, 18, 8, time.Hour)
	a.now = func() time.Time { return now }

	q, err := a.NativePrice(context.Background())
	require.NoError(t, err)
	assert.True(t, dec("200000000000").Equal(q.Price))
}

func TestNativePrice_RejectsNonPositive(t *testing.T) {
	now := time.Now()
	for _, price := range []string{"0", "-1"} {
		src := &stubSource{quote: Quote{Price: dec(price), UpdatedAt: now}}
		a := NewAdapter(src, 18, 8, time.Hour)

		_, err := a.NativePrice(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidPrice)
	}
}

func TestNativePrice_RejectsStaleQuote(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	src := &stubSource{quote: Quote{Price: dec("100"), UpdatedAt: now.Add(-61 * time.Minute)}}

	a := NewAdapter(src, 18, 8, time.Hour)
	a.now = func() time.Time { return now }

	_, err := a.NativePrice(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStalePrice)
}

func TestNativePrice_WrapsSourceError(t *testing.T) {
	src := &stubSource{err: errors.New("connection refused")}
	a := NewAdapter(src, 18, 8, time.Hour)

	_, err := a.NativePrice(context.Background())
	require.Error(t, err)
}

func TestConvertNativeToCanonical(t *testing.T) {
	now := time.Now()
	// price 2000 USD, 8 feed decimals
	src := &stubSource{quote: Quote{Price: dec("200000000000"), UpdatedAt: now}}
	a := NewAdapter(src, 18, 8, time.Hour)

	// 1 coin (1e18 base units) at 2000 USD = 2000e6 canonical units
	out, err := a.ConvertNativeToCanonical(context.Background(), dec("1000000000000000000"))
	require.NoError(t, err)
	assert.True(t, dec("2000000000").Equal(out), "got %s", out)

	// half a coin
	out, err = a.ConvertNativeToCanonical(context.Background(), dec("500000000000000000"))
	require.NoError(t, err)
	assert.True(t, dec("1000000000").Equal(out))
}

func TestConvertNativeToCanonical_RefetchesPerCall(t *testing.T) {
	src := &stubSource{quote: Quote{Price: dec("100000000000"), UpdatedAt: time.Now()}}
	a := NewAdapter(src, 18, 8, time.Hour)

	_, err := a.ConvertNativeToCanonical(context.Background(), dec("1000000000000000000"))
	require.NoError(t, err)
	_, err = a.ConvertNativeToCanonical(context.Background(), dec("1000000000000000000"))
	require.NoError(t, err)

	// no caching: one fetch per conversion
	assert.Equal(t, 2, src.calls)
}

func TestConvertNativeToCanonical_Truncates(t *testing.T) {
	now := time.Now()
	// price with an awkward tail so the division does not come out even
	src := &stubSource{quote: Quote{Price: dec("199999999999"), UpdatedAt: now}}
	a := NewAdapter(src, 18, 8, time.Hour)

	out, err := a.ConvertNativeToCanonical(context.Background(), dec("3"))
	require.NoError(t, err)
	// 3 * 199999999999 / 1e20 floors to zero
	assert.True(t, decimal.Zero.Equal(out))
}
