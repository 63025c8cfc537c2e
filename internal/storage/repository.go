package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createSnapshotsTableSQL = `CREATE TABLE IF NOT EXISTS coin_price_data (
        id BIGSERIAL PRIMARY KEY,
        coin_id TEXT NOT NULL,
        symbol TEXT NOT NULL,
        name TEXT NOT NULL,
        current_price NUMERIC NOT NULL,
        market_cap NUMERIC NOT NULL,
        total_volume NUMERIC NOT NULL,
        price_change_percentage_24h NUMERIC,
        last_updated TEXT,
        ingestion_timestamp TIMESTAMPTZ NOT NULL
    );`

	createErrorLogsTableSQL = `CREATE TABLE IF NOT EXISTS api_error_logs (
        id BIGSERIAL PRIMARY KEY,
        error_message TEXT NOT NULL,
        source TEXT NOT NULL,
        timestamp TIMESTAMPTZ NOT NULL
    );`

	createCoinIndexSQL      = `CREATE INDEX IF NOT EXISTS idx_coin_price_data_coin_id ON coin_price_data (coin_id);`
	createTimestampIndexSQL = `CREATE INDEX IF NOT EXISTS idx_coin_price_data_ingestion_timestamp ON coin_price_data (ingestion_timestamp);`

	insertSnapshotSQL = `INSERT INTO coin_price_data (
        coin_id,
        symbol,
        name,
        current_price,
        market_cap,
        total_volume,
        price_change_percentage_24h,
        last_updated,
        ingestion_timestamp
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9
    );`

	insertErrorLogSQL = `INSERT INTO api_error_logs (
        error_message,
        source,
        timestamp
    ) VALUES (
        $1,$2,$3
    );`

	snapshotColumns = `id,
        coin_id,
        symbol,
        name,
        current_price,
        market_cap,
        total_volume,
        price_change_percentage_24h,
        last_updated,
        ingestion_timestamp`

	latestPerCoinSQL = `WITH latest_records AS (
        SELECT ` + snapshotColumns + `,
               ROW_NUMBER() OVER (PARTITION BY coin_id ORDER BY ingestion_timestamp DESC, id DESC) AS rn
        FROM coin_price_data
    )
    SELECT ` + snapshotColumns + `
    FROM latest_records
    WHERE rn = 1;`

	snapshotAtOrBeforeSQL = `SELECT ` + snapshotColumns + `
    FROM coin_price_data
    WHERE coin_id = $1
      AND ingestion_timestamp <= $2
    ORDER BY ingestion_timestamp DESC, id DESC
    LIMIT 1;`

	listCoinHistorySQL = `SELECT ` + snapshotColumns + `
    FROM coin_price_data
    WHERE coin_id = $1
      AND ingestion_timestamp >= $2
      AND ingestion_timestamp < $3
    ORDER BY ingestion_timestamp, id;`

	listSnapshotsBetweenSQL = `SELECT ` + snapshotColumns + `
    FROM coin_price_data
    WHERE ingestion_timestamp >= $1
      AND ingestion_timestamp < $2
    ORDER BY ingestion_timestamp, id;`

	listRecentErrorsSQL = `SELECT
        id,
        error_message,
        source,
        timestamp
    FROM api_error_logs
    ORDER BY timestamp DESC, id DESC
    LIMIT $1;`

	countSnapshotsSQL = `SELECT COUNT(*) FROM coin_price_data;`
)

// SnapshotStore defines persistence operations for coin snapshots.
type SnapshotStore interface {
	InsertSnapshots(ctx context.Context, snapshots []CoinSnapshot) error
	LatestPerCoin(ctx context.Context) (map[string]CoinSnapshot, error)
	SnapshotAtOrBefore(ctx context.Context, coinID string, at time.Time) (*CoinSnapshot, error)
	ListCoinHistory(ctx context.Context, coinID string, from, to time.Time) ([]CoinSnapshot, error)
	ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]CoinSnapshot, error)
	CountSnapshots(ctx context.Context) (int64, error)
}

// ErrorLogStore defines operations for the ingestion failure log.
type ErrorLogStore interface {
	InsertErrorLog(ctx context.Context, entry ErrorLogEntry) error
	ListRecentErrors(ctx context.Context, limit int) ([]ErrorLogEntry, error)
}

// Store aggregates access to price history and error logs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	statements := []string{
		createSnapshotsTableSQL,
		createErrorLogsTableSQL,
		createCoinIndexSQL,
		createTimestampIndexSQL,
	}
	for _, stmt := range statements {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("ensure schema: %w", execErr)
		}
	}
	return nil
}

// InsertSnapshots appends a batch of snapshots inside one transaction.
// Either every row lands or none do.
func (s *Store) InsertSnapshots(ctx context.Context, snapshots []CoinSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot insert: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		var change interface{}
		if snap.PriceChange24hPct.Valid {
			change = snap.PriceChange24hPct.Decimal.String()
		}
		batch.Queue(insertSnapshotSQL,
			snap.CoinID,
			snap.Symbol,
			snap.Name,
			snap.CurrentPrice.String(),
			snap.MarketCap.String(),
			snap.TotalVolume.String(),
			change,
			snap.LastUpdated,
			snap.IngestionTimestamp,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for range snapshots {
		if _, execErr := results.Exec(); execErr != nil {
			results.Close()
			return fmt.Errorf("insert snapshot: %w", execErr)
		}
	}
	if closeErr := results.Close(); closeErr != nil {
		return fmt.Errorf("insert snapshot batch: %w", closeErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("commit snapshot insert: %w", commitErr)
	}
	return nil
}

// InsertErrorLog appends an ingestion failure record.
func (s *Store) InsertErrorLog(ctx context.Context, entry ErrorLogEntry) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertErrorLogSQL, entry.ErrorMessage, entry.Source, entry.Timestamp); execErr != nil {
		return fmt.Errorf("insert error log: %w", execErr)
	}
	return nil
}

// LatestPerCoin returns the most recent snapshot for every tracked coin.
// Equal timestamps resolve to the highest row id. An empty table yields an
// empty map.
func (s *Store) LatestPerCoin(ctx context.Context) (map[string]CoinSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestPerCoinSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("latest per coin: %w", queryErr)
	}
	defer rows.Close()

	latest := make(map[string]CoinSnapshot)
	for rows.Next() {
		snap, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		latest[snap.CoinID] = snap
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return latest, nil
}

// SnapshotAtOrBefore returns the newest snapshot for a coin at or before the
// given instant, or nil when the coin has no history that old.
func (s *Store) SnapshotAtOrBefore(ctx context.Context, coinID string, at time.Time) (*CoinSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, snapshotAtOrBeforeSQL, coinID, at)
	if queryErr != nil {
		return nil, fmt.Errorf("snapshot at or before: %w", queryErr)
	}
	defer rows.Close()

	if !rows.Next() {
		if rows.Err() != nil {
			return nil, rows.Err()
		}
		return nil, nil
	}

	snap, scanErr := scanSnapshot(rows)
	if scanErr != nil {
		return nil, scanErr
	}
	return &snap, nil
}

// ListCoinHistory lists one coin's snapshots within [from, to) in insertion order.
func (s *Store) ListCoinHistory(ctx context.Context, coinID string, from, to time.Time) ([]CoinSnapshot, error) {
	return s.listSnapshots(ctx, listCoinHistorySQL, coinID, from, to)
}

// ListSnapshotsBetween lists all snapshots within [from, to) in insertion order.
func (s *Store) ListSnapshotsBetween(ctx context.Context, from, to time.Time) ([]CoinSnapshot, error) {
	return s.listSnapshots(ctx, listSnapshotsBetweenSQL, from, to)
}

func (s *Store) listSnapshots(ctx context.Context, query string, args ...interface{}) ([]CoinSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots: %w", queryErr)
	}
	defer rows.Close()

	snapshots := make([]CoinSnapshot, 0)
	for rows.Next() {
		snap, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snapshots = append(snapshots, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

// ListRecentErrors lists the most recent ingestion failures.
func (s *Store) ListRecentErrors(ctx context.Context, limit int) ([]ErrorLogEntry, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentErrorsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent errors: %w", queryErr)
	}
	defer rows.Close()

	entries := make([]ErrorLogEntry, 0, limit)
	for rows.Next() {
		var entry ErrorLogEntry
		if err := rows.Scan(&entry.ID, &entry.ErrorMessage, &entry.Source, &entry.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return entries, nil
}

// CountSnapshots counts stored snapshots.
func (s *Store) CountSnapshots(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countSnapshotsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count snapshots: %w", scanErr)
	}
	return count, nil
}

func scanSnapshot(rows pgx.Rows) (CoinSnapshot, error) {
	var (
		id          int64
		coinID      string
		symbol      string
		name        string
		priceStr    string
		capStr      string
		volumeStr   string
		changeStr   sql.NullString
		lastUpdated sql.NullString
		ingestion   time.Time
	)

	if err := rows.Scan(
		&id,
		&coinID,
		&symbol,
		&name,
		&priceStr,
		&capStr,
		&volumeStr,
		&changeStr,
		&lastUpdated,
		&ingestion,
	); err != nil {
		return CoinSnapshot{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return CoinSnapshot{}, fmt.Errorf("parse current price: %w", err)
	}
	marketCap, err := decimal.NewFromString(capStr)
	if err != nil {
		return CoinSnapshot{}, fmt.Errorf("parse market cap: %w", err)
	}
	volume, err := decimal.NewFromString(volumeStr)
	if err != nil {
		return CoinSnapshot{}, fmt.Errorf("parse total volume: %w", err)
	}

	snap := CoinSnapshot{
		ID:                 id,
		CoinID:             coinID,
		Symbol:             symbol,
		Name:               name,
		CurrentPrice:       price,
		MarketCap:          marketCap,
		TotalVolume:        volume,
		IngestionTimestamp: ingestion,
	}

	if lastUpdated.Valid {
		snap.LastUpdated = lastUpdated.String
	}
	if changeStr.Valid {
		change, convErr := decimal.NewFromString(changeStr.String)
		if convErr != nil {
			return CoinSnapshot{}, fmt.Errorf("parse 24h change: %w", convErr)
		}
		snap.PriceChange24hPct = decimal.NullDecimal{Decimal: change, Valid: true}
	}

	return snap, nil
}

var _ SnapshotStore = (*Store)(nil)
var _ ErrorLogStore = (*Store)(nil)
