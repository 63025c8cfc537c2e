package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// CoinSnapshot is one coin's market state at a single ingestion instant.
type CoinSnapshot struct {
	ID                 int64
	CoinID             string
	Symbol             string
	Name               string
	CurrentPrice       decimal.Decimal
	MarketCap          decimal.Decimal
	TotalVolume        decimal.Decimal
	PriceChange24hPct  decimal.NullDecimal
	LastUpdated        string
	IngestionTimestamp time.Time
}

// ErrorLogEntry captures one ingestion failure for the audit log.
type ErrorLogEntry struct {
	ID           int64
	ErrorMessage string
	Source       string
	Timestamp    time.Time
}
