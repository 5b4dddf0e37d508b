package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// feedResponse is the wire shape served by the price feed.
type feedResponse struct {
	Price     string `json:"price"`
	UpdatedAt int64  `json:"updated_at"`
}

// HTTPFeed fetches quotes from an HTTP price feed. It carries no state beyond
// the client: each Latest call is a fresh round trip.
type HTTPFeed struct {
	url        string
	httpClient *http.Client
}

func NewHTTPFeed(url string) *HTTPFeed {
	return &HTTPFeed{
		url: url,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (f *HTTPFeed) Latest(ctx context.Context) (Quote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Quote{}, err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("price feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, err
	}

	var data feedResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return Quote{}, fmt.Errorf("decode price feed response: %w", err)
	}

	price, err := decimal.NewFromString(data.Price)
	if err != nil {
		return Quote{}, fmt.Errorf("parse price %q: %w", data.Price, err)
	}

	return Quote{
		Price:     price,
		UpdatedAt: time.Unix(data.UpdatedAt, 0).UTC(),
	}, nil
}
