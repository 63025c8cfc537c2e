package detector

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"crypto-pulse/internal/storage"
)

// Kind classifies a detected market event.
type Kind string

const (
	KindRankOvertake Kind = "rank_overtake"
	KindPriceDrop    Kind = "price_drop"
	KindVolumeSpike  Kind = "volume_spike"
	KindDailyChange  Kind = "daily_change_threshold"
)

// Event is one detected condition. Events are transient: they are handed to
// the dispatcher and never persisted.
type Event struct {
	Kind     Kind
	CoinID   string
	Overtook string
	Message  string
}

// Thresholds hold the comparison parameters for a detection pass.
type Thresholds struct {
	PriceDropPct   decimal.Decimal
	VolumeSpikePct decimal.Decimal
	DailyChangePct decimal.Decimal
	Timeframe      time.Duration
}

// DefaultThresholds mirror the recognised configuration defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		PriceDropPct:   decimal.NewFromFloat(-5.0),
		VolumeSpikePct: decimal.NewFromFloat(50.0),
		DailyChangePct: decimal.NewFromFloat(-10.0),
		Timeframe:      time.Hour,
	}
}

// BaselineFunc resolves the newest snapshot for a coin at or before the
// given instant. A nil snapshot means the coin has no history that old.
type BaselineFunc func(coinID string, at time.Time) (*storage.CoinSnapshot, error)

var hundred = decimal.NewFromInt(100)

// Detect compares a new batch against prior store state and returns the
// detected events in detection order: rank overtakes, then per-coin price
// drops and volume spikes against the lookback baseline, then absolute
// 24h-change breaches. The batch order is treated as the authoritative
// current ranking; the upstream API returns coins sorted by market cap
// descending.
func Detect(batch []storage.CoinSnapshot, priorLatest map[string]storage.CoinSnapshot, baselineAt BaselineFunc, now time.Time, th Thresholds) ([]Event, error) {
	events := detectOvertakes(batch, priorLatest)

	baselineTS := now.Add(-th.Timeframe)
	for _, snap := range batch {
		baseline, err := baselineAt(snap.CoinID, baselineTS)
		if err != nil {
			return nil, fmt.Errorf("baseline lookup for %s: %w", snap.CoinID, err)
		}
		if baseline == nil {
			// New coin or not enough history; nothing to compare against.
			continue
		}

		if baseline.CurrentPrice.IsPositive() {
			pct := pctChange(snap.CurrentPrice, baseline.CurrentPrice)
			if pct.LessThanOrEqual(th.PriceDropPct) {
				events = append(events, Event{
					Kind:   KindPriceDrop,
					CoinID: snap.CoinID,
					Message: fmt.Sprintf("PRICE DROP: %s fell %s%% within the alert timeframe ($%s -> $%s)",
						snap.Name, pct.Abs().StringFixed(2), baseline.CurrentPrice.StringFixed(2), snap.CurrentPrice.StringFixed(2)),
				})
			}
		}

		if baseline.TotalVolume.IsPositive() {
			pct := pctChange(snap.TotalVolume, baseline.TotalVolume)
			if pct.GreaterThanOrEqual(th.VolumeSpikePct) {
				events = append(events, Event{
					Kind:   KindVolumeSpike,
					CoinID: snap.CoinID,
					Message: fmt.Sprintf("VOLUME SPIKE: %s trading volume rose %s%% within the alert timeframe",
						snap.Name, pct.StringFixed(2)),
				})
			}
		}
	}

	for _, snap := range batch {
		if !snap.PriceChange24hPct.Valid {
			continue
		}
		change := snap.PriceChange24hPct.Decimal
		if change.LessThanOrEqual(th.DailyChangePct) {
			events = append(events, Event{
				Kind:   KindDailyChange,
				CoinID: snap.CoinID,
				Message: fmt.Sprintf("24H CHANGE: %s is down %s%% over the last 24 hours",
					snap.Name, change.Abs().StringFixed(2)),
			})
		}
	}

	return events, nil
}

// detectOvertakes compares the batch ordering against the prior ranking by
// market cap. The overtaken coin is named by its position in the new
// ranking, so the reported "now #N" is the overtaken coin's new rank rather
// than the rank it held before. This reproduces the behaviour observed in
// the system being replaced; see the package tests.
func detectOvertakes(batch []storage.CoinSnapshot, priorLatest map[string]storage.CoinSnapshot) []Event {
	if len(priorLatest) == 0 {
		// First run, nothing to rank against.
		return nil
	}

	oldRanking := make([]storage.CoinSnapshot, 0, len(priorLatest))
	for _, snap := range priorLatest {
		oldRanking = append(oldRanking, snap)
	}
	sort.SliceStable(oldRanking, func(i, j int) bool {
		if !oldRanking[i].MarketCap.Equal(oldRanking[j].MarketCap) {
			return oldRanking[i].MarketCap.GreaterThan(oldRanking[j].MarketCap)
		}
		return oldRanking[i].CoinID < oldRanking[j].CoinID
	})

	oldRank := make(map[string]int, len(oldRanking))
	for i, snap := range oldRanking {
		oldRank[snap.CoinID] = i
	}

	var events []Event
	for newRank, snap := range batch {
		prev, known := oldRank[snap.CoinID]
		if !known || newRank >= prev {
			continue
		}

		event := Event{Kind: KindRankOvertake, CoinID: snap.CoinID}
		if newRank+1 < len(batch) {
			displaced := batch[newRank+1]
			event.Overtook = displaced.CoinID
			event.Message = fmt.Sprintf("RANK CHANGE: %s has overtaken %s in market cap (%s now #%d)",
				snap.Name, displaced.Name, displaced.Name, newRank+2)
		} else {
			event.Message = fmt.Sprintf("RANK CHANGE: %s climbed to #%d by market cap", snap.Name, newRank+1)
		}
		events = append(events, event)
	}
	return events
}

func pctChange(current, baseline decimal.Decimal) decimal.Decimal {
	return current.Sub(baseline).Div(baseline).Mul(hundred)
}
