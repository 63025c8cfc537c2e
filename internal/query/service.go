package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"crypto-pulse/internal/storage"
)

// Service answers the dashboard-facing read queries. Results may be served
// from a Redis TTL cache; cache trouble degrades to direct store reads.
type Service struct {
	snapshots storage.SnapshotStore
	errorLog  storage.ErrorLogStore
	cache     *redis.Client
	ttl       time.Duration
	logger    zerolog.Logger
}

// New constructs the query service. cache may be nil to disable caching.
func New(snapshots storage.SnapshotStore, errorLog storage.ErrorLogStore, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{
		snapshots: snapshots,
		errorLog:  errorLog,
		cache:     cache,
		ttl:       ttl,
		logger:    logger.With().Str("component", "query").Logger(),
	}
}

// Overview returns the latest snapshot per coin, ordered by market cap
// descending.
func (s *Service) Overview(ctx context.Context) ([]storage.CoinSnapshot, error) {
	const key = "query:overview"

	var cached []storage.CoinSnapshot
	if s.readCache(ctx, key, &cached) {
		return cached, nil
	}

	latest, err := s.snapshots.LatestPerCoin(ctx)
	if err != nil {
		return nil, err
	}

	overview := make([]storage.CoinSnapshot, 0, len(latest))
	for _, snap := range latest {
		overview = append(overview, snap)
	}
	sort.SliceStable(overview, func(i, j int) bool {
		if !overview[i].MarketCap.Equal(overview[j].MarketCap) {
			return overview[i].MarketCap.GreaterThan(overview[j].MarketCap)
		}
		return overview[i].CoinID < overview[j].CoinID
	})

	s.writeCache(ctx, key, overview)
	return overview, nil
}

// History returns one coin's snapshots within [from, to) in insertion order.
func (s *Service) History(ctx context.Context, coinID string, from, to time.Time) ([]storage.CoinSnapshot, error) {
	key := fmt.Sprintf("query:history:%s:%d:%d", coinID, from.Unix(), to.Unix())

	var cached []storage.CoinSnapshot
	if s.readCache(ctx, key, &cached) {
		return cached, nil
	}

	history, err := s.snapshots.ListCoinHistory(ctx, coinID, from, to)
	if err != nil {
		return nil, err
	}

	s.writeCache(ctx, key, history)
	return history, nil
}

// RecentErrors returns the most recent ingestion failures.
func (s *Service) RecentErrors(ctx context.Context, limit int) ([]storage.ErrorLogEntry, error) {
	key := fmt.Sprintf("query:errors:%d", limit)

	var cached []storage.ErrorLogEntry
	if s.readCache(ctx, key, &cached) {
		return cached, nil
	}

	entries, err := s.errorLog.ListRecentErrors(ctx, limit)
	if err != nil {
		return nil, err
	}

	s.writeCache(ctx, key, entries)
	return entries, nil
}

func (s *Service) readCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	raw, err := s.cache.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed; falling back to store")
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache entry unreadable; falling back to store")
		return false
	}
	return true
}

func (s *Service) writeCache(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache marshal failed")
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
