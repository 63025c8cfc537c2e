package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"crypto-pulse/internal/storage"
)

// Show prints the latest snapshot per coin, or the recent error log.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	queries, closeCache := a.newQueryService(store)
	defer closeCache()

	if opts.Errors {
		return showErrors(ctx, queries, opts.Limit)
	}

	overview, err := queries.Overview(ctx)
	if err != nil {
		return err
	}
	if len(overview) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Name\tSymbol\tPrice\tMarket Cap\tVolume\t24h%\tIngested (UTC)")

	for _, snap := range overview {
		change := "n/a"
		if snap.PriceChange24hPct.Valid {
			change = snap.PriceChange24hPct.Decimal.StringFixed(2) + "%"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t$%s\t$%s\t$%s\t%s\t%s\n",
			snap.Name,
			strings.ToUpper(snap.Symbol),
			snap.CurrentPrice.StringFixed(2),
			snap.MarketCap.StringFixed(0),
			snap.TotalVolume.StringFixed(0),
			change,
			snap.IngestionTimestamp.UTC().Format(time.RFC3339),
		)
	}

	return writer.Flush()
}

type errorLister interface {
	RecentErrors(ctx context.Context, limit int) ([]storage.ErrorLogEntry, error)
}

func showErrors(ctx context.Context, queries errorLister, limit int) error {
	entries, err := queries.RecentErrors(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(os.Stdout, "no errors have been logged")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSource\tError")
	for _, entry := range entries {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\n",
			entry.Timestamp.UTC().Format(time.RFC3339),
			entry.Source,
			sanitizeInline(entry.ErrorMessage),
		)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
