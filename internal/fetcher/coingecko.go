package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-pulse/internal/storage"
)

const marketsPath = "/coins/markets"

// CoinGeckoOptions parameterise the markets fetcher.
type CoinGeckoOptions struct {
	BaseURL    string
	VSCurrency string
	Coins      []string
	Timeout    time.Duration
	UserAgent  string
}

// CoinGecko fetches market snapshots from the CoinGecko markets endpoint.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinGecko constructs a markets fetcher.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchMarkets retrieves the tracked coin set in one request, stamps the
// batch with a single UTC ingestion timestamp, and validates every record.
// A single invalid record rejects the whole batch.
func (c *CoinGecko) FetchMarkets(ctx context.Context) ([]storage.CoinSnapshot, error) {
	if len(c.opts.Coins) == 0 {
		return nil, invalidPayloadError("no coin ids configured", nil)
	}

	vsCurrency := c.opts.VSCurrency
	if vsCurrency == "" {
		vsCurrency = "usd"
	}

	params := url.Values{}
	params.Set("vs_currency", vsCurrency)
	params.Set("ids", strings.Join(c.opts.Coins, ","))
	params.Set("order", "market_cap_desc")

	endpoint := c.baseURL + marketsPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, networkError("create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "cryptopulse/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, networkError("request markets", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, networkError("read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, networkError(fmt.Sprintf("coingecko api status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))), nil)
	}

	var records []marketRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, invalidPayloadError("decode markets response", err)
	}

	ingestedAt := time.Now().UTC()
	snapshots := make([]storage.CoinSnapshot, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if err := rec.validate(); err != nil {
			return nil, invalidPayloadError(fmt.Sprintf("record %d", i), err)
		}
		if _, dup := seen[rec.ID]; dup {
			return nil, invalidPayloadError(fmt.Sprintf("duplicate coin id %q", rec.ID), nil)
		}
		seen[rec.ID] = struct{}{}

		snap := storage.CoinSnapshot{
			CoinID:             rec.ID,
			Symbol:             rec.Symbol,
			Name:               rec.Name,
			CurrentPrice:       *rec.CurrentPrice,
			MarketCap:          *rec.MarketCap,
			TotalVolume:        *rec.TotalVolume,
			LastUpdated:        rec.LastUpdated,
			IngestionTimestamp: ingestedAt,
		}
		if rec.PriceChange24h != nil {
			snap.PriceChange24hPct = decimal.NullDecimal{Decimal: *rec.PriceChange24h, Valid: true}
		}
		snapshots = append(snapshots, snap)
	}

	c.logger.Debug().Int("records", len(snapshots)).Time("ingested_at", ingestedAt).Msg("fetched market snapshot batch")
	return snapshots, nil
}

type marketRecord struct {
	ID             string           `json:"id"`
	Symbol         string           `json:"symbol"`
	Name           string           `json:"name"`
	CurrentPrice   *decimal.Decimal `json:"current_price"`
	MarketCap      *decimal.Decimal `json:"market_cap"`
	TotalVolume    *decimal.Decimal `json:"total_volume"`
	PriceChange24h *decimal.Decimal `json:"price_change_percentage_24h"`
	LastUpdated    string           `json:"last_updated"`
}

func (r marketRecord) validate() error {
	if r.ID == "" {
		return fmt.Errorf("missing id")
	}
	if r.CurrentPrice == nil {
		return fmt.Errorf("coin %q missing current_price", r.ID)
	}
	if r.MarketCap == nil {
		return fmt.Errorf("coin %q missing market_cap", r.ID)
	}
	if r.TotalVolume == nil {
		return fmt.Errorf("coin %q missing total_volume", r.ID)
	}
	return nil
}

var _ SnapshotFetcher = (*CoinGecko)(nil)
