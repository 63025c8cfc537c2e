package fetcher

import (
	"context"
	"fmt"

	"crypto-pulse/internal/storage"
)

// SnapshotFetcher retrieves one validated market snapshot batch.
type SnapshotFetcher interface {
	FetchMarkets(ctx context.Context) ([]storage.CoinSnapshot, error)
}

// ErrorKind classifies fetch failures.
type ErrorKind string

const (
	// ErrorKindNetwork covers transport failures and non-2xx responses.
	ErrorKindNetwork ErrorKind = "network"
	// ErrorKindInvalidPayload covers parse failures and records with
	// missing required fields.
	ErrorKindInvalidPayload ErrorKind = "invalid_payload"
)

// FetchError describes an upstream fetch failure.
type FetchError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.Kind, e.Detail)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func networkError(detail string, err error) *FetchError {
	return &FetchError{Kind: ErrorKindNetwork, Detail: detail, Err: err}
}

func invalidPayloadError(detail string, err error) *FetchError {
	return &FetchError{Kind: ErrorKindInvalidPayload, Detail: detail, Err: err}
}
