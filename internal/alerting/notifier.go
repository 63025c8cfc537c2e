package alerting

import (
	"context"
	"time"
)

// Notification carries one detected event to a delivery channel.
type Notification struct {
	Kind       string
	CoinID     string
	Message    string
	DetectedAt time.Time
}

// Notifier delivers a notification over one channel.
type Notifier interface {
	Notify(ctx context.Context, note Notification) error
}
