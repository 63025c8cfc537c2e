package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestFetcher(baseURL string, coins []string) *CoinGecko {
	return NewCoinGecko(CoinGeckoOptions{
		BaseURL:    baseURL,
		VSCurrency: "usd",
		Coins:      coins,
		Timeout:    time.Second,
		UserAgent:  "test",
	}, noopLogger())
}

func TestFetchMarketsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("vs_currency"); got != "usd" {
			t.Fatalf("vs_currency = %q, want usd", got)
		}
		if got := r.URL.Query().Get("ids"); got != "bitcoin,ethereum" {
			t.Fatalf("ids = %q, want bitcoin,ethereum", got)
		}
		if got := r.URL.Query().Get("order"); got != "market_cap_desc" {
			t.Fatalf("order = %q, want market_cap_desc", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":50000,"market_cap":1000000,"total_volume":20000,"price_change_percentage_24h":-1.5,"last_updated":"2024-01-01T00:00:00Z"},
			{"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":3000,"market_cap":400000,"total_volume":15000,"price_change_percentage_24h":null,"last_updated":"2024-01-01T00:00:00Z"}
		]`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, []string{"bitcoin", "ethereum"})
	batch, err := f.FetchMarkets(context.Background())
	if err != nil {
		t.Fatalf("FetchMarkets returned error: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(batch))
	}

	if batch[0].CoinID != "bitcoin" || batch[1].CoinID != "ethereum" {
		t.Fatalf("batch order not preserved: %s, %s", batch[0].CoinID, batch[1].CoinID)
	}
	if batch[0].CurrentPrice.String() != "50000" {
		t.Fatalf("current price = %s, want 50000", batch[0].CurrentPrice)
	}
	if !batch[0].PriceChange24hPct.Valid {
		t.Fatal("bitcoin 24h change should be present")
	}
	if batch[1].PriceChange24hPct.Valid {
		t.Fatal("ethereum 24h change should be null")
	}
	if !batch[0].IngestionTimestamp.Equal(batch[1].IngestionTimestamp) {
		t.Fatal("whole batch must share one ingestion timestamp")
	}
	if batch[0].IngestionTimestamp.Location() != time.UTC {
		t.Fatal("ingestion timestamp must be UTC")
	}
}

func TestFetchMarketsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, []string{"bitcoin"})
	_, err := f.FetchMarkets(context.Background())

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fetchErr.Kind != ErrorKindNetwork {
		t.Fatalf("kind = %s, want %s", fetchErr.Kind, ErrorKindNetwork)
	}
}

func TestFetchMarketsTransportError(t *testing.T) {
	f := newTestFetcher("http://127.0.0.1:0", []string{"bitcoin"})
	_, err := f.FetchMarkets(context.Background())

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fetchErr.Kind != ErrorKindNetwork {
		t.Fatalf("kind = %s, want %s", fetchErr.Kind, ErrorKindNetwork)
	}
}

func TestFetchMarketsRejectsWholeBatchOnMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Second record lacks total_volume; the first is complete but must
		// be rejected along with it.
		w.Write([]byte(`[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":50000,"market_cap":1000000,"total_volume":20000},
			{"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":3000,"market_cap":400000,"total_volume":null}
		]`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, []string{"bitcoin", "ethereum"})
	batch, err := f.FetchMarkets(context.Background())
	if batch != nil {
		t.Fatalf("expected no snapshots from an invalid batch, got %d", len(batch))
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fetchErr.Kind != ErrorKindInvalidPayload {
		t.Fatalf("kind = %s, want %s", fetchErr.Kind, ErrorKindInvalidPayload)
	}
}

func TestFetchMarketsRejectsDuplicateCoinIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":50000,"market_cap":1000000,"total_volume":20000},
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":50001,"market_cap":1000000,"total_volume":20000}
		]`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, []string{"bitcoin"})
	_, err := f.FetchMarkets(context.Background())

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fetchErr.Kind != ErrorKindInvalidPayload {
		t.Fatalf("kind = %s, want %s", fetchErr.Kind, ErrorKindInvalidPayload)
	}
}

func TestFetchMarketsMalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"a list"}`))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, []string{"bitcoin"})
	_, err := f.FetchMarkets(context.Background())

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %T", err)
	}
	if fetchErr.Kind != ErrorKindInvalidPayload {
		t.Fatalf("kind = %s, want %s", fetchErr.Kind, ErrorKindInvalidPayload)
	}
}
