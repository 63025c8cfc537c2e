package alerting

import (
	"context"
	"errors"
	"testing"
	"time"

	"crypto-pulse/internal/detector"
)

type captureNotifier struct {
	notes []Notification
	err   error
}

func (c *captureNotifier) Notify(_ context.Context, note Notification) error {
	c.notes = append(c.notes, note)
	return c.err
}

func twoEvents() []detector.Event {
	return []detector.Event{
		{Kind: detector.KindPriceDrop, CoinID: "bitcoin", Message: "drop one"},
		{Kind: detector.KindVolumeSpike, CoinID: "ethereum", Message: "spike two"},
	}
}

func TestDispatchFansOutToAllEnabledChannels(t *testing.T) {
	email := &captureNotifier{}
	telegram := &captureNotifier{}
	d := NewDispatcher(email, telegram, testLogger())

	cfg := ChannelConfig{EmailEnabled: true, TelegramEnabled: true}
	d.Dispatch(context.Background(), cfg, twoEvents(), time.Now())

	if len(email.notes) != 2 || len(telegram.notes) != 2 {
		t.Fatalf("both channels should get both events: email=%d telegram=%d", len(email.notes), len(telegram.notes))
	}
}

func TestDispatchFailingChannelDoesNotBlockOthers(t *testing.T) {
	email := &captureNotifier{err: errors.New("smtp down")}
	telegram := &captureNotifier{}
	d := NewDispatcher(email, telegram, testLogger())

	cfg := ChannelConfig{EmailEnabled: true, TelegramEnabled: true}
	d.Dispatch(context.Background(), cfg, twoEvents(), time.Now())

	// Email fails on every event yet both events still reach telegram and
	// the second event is still attempted on email.
	if len(email.notes) != 2 {
		t.Fatalf("failing channel should still be attempted per event, got %d", len(email.notes))
	}
	if len(telegram.notes) != 2 {
		t.Fatalf("healthy channel should receive all events, got %d", len(telegram.notes))
	}
}

func TestDispatchDisabledChannelSkipped(t *testing.T) {
	email := &captureNotifier{}
	telegram := &captureNotifier{}
	d := NewDispatcher(email, telegram, testLogger())

	cfg := ChannelConfig{TelegramEnabled: true}
	d.Dispatch(context.Background(), cfg, twoEvents(), time.Now())

	if len(email.notes) != 0 {
		t.Fatalf("disabled channel must not be called, got %d", len(email.notes))
	}
	if len(telegram.notes) != 2 {
		t.Fatalf("enabled channel should receive all events, got %d", len(telegram.notes))
	}
}

func TestDispatchEnabledButUnconfiguredChannelIsNoop(t *testing.T) {
	telegram := &captureNotifier{}
	d := NewDispatcher(nil, telegram, testLogger())

	cfg := ChannelConfig{EmailEnabled: true, TelegramEnabled: true}
	d.Dispatch(context.Background(), cfg, twoEvents(), time.Now())

	if len(telegram.notes) != 2 {
		t.Fatalf("configured channel should still deliver, got %d", len(telegram.notes))
	}
}

func TestDispatchDeduplicatesIdenticalMessages(t *testing.T) {
	telegram := &captureNotifier{}
	d := NewDispatcher(nil, telegram, testLogger())

	events := []detector.Event{
		{Kind: detector.KindPriceDrop, CoinID: "bitcoin", Message: "same"},
		{Kind: detector.KindPriceDrop, CoinID: "bitcoin", Message: "same"},
	}
	cfg := ChannelConfig{TelegramEnabled: true}
	d.Dispatch(context.Background(), cfg, events, time.Now())

	if len(telegram.notes) != 1 {
		t.Fatalf("duplicate messages within a run should be sent once, got %d", len(telegram.notes))
	}
}
