package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPFeed_Latest(t *testing.T) {
	updated := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"price":"200000000000","updated_at":` + "1748779200" + `}`))
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL)
	q, err := feed.Latest(context.Background())
	require.NoError(t, err)
	assert.True(t, dec("200000000000").Equal(q.Price))
	assert.Equal(t, updated, q.UpdatedAt)
}

func TestHTTPFeed_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL)
	_, err := feed.Latest(context.Background())
	require.Error(t, err)
}

func TestHTTPFeed_MalformedPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"price":"not-a-number","updated_at":1748779200}`))
	}))
	defer srv.Close()

	feed := NewHTTPFeed(srv.URL)
	_, err := feed.Latest(context.Background())
	require.Error(t, err)
}
