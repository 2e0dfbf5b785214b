package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ovalline/opsdesk/internal/domain"
	"github.com/redis/go-redis/v9"
)

func TestPoller_DrainsThenIdlesThenStops(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := &fakeStore{events: []domain.OutboxEvent{
		pendingEvent("evt-1", domain.EventQuoteDecision, `{}`, 3*time.Minute),
		pendingEvent("evt-2", domain.EventQuoteDecision, `{}`, 2*time.Minute),
		pendingEvent("evt-3", domain.EventQuoteDecision, `{}`, time.Minute),
	}}

	handled := make(chan string, 3)
	handlers := map[string]HandlerFunc{
		domain.EventQuoteDecision: func(_ context.Context, _ json.RawMessage) error {
			handled <- "ok"
			return nil
		},
	}

	dispatcher := NewDispatcher(store, handlers, testLogger(), 10)
	lease := NewLease(client, 30*time.Second)

	// Batch size 1 forces the immediate-repass path: three events must
	// drain well inside one idle interval.
	poller := NewPoller(dispatcher, lease, testLogger(), time.Hour, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		poller.Run(ctx)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-handled:
		case <-time.After(5 * time.Second):
			t.Fatal("poller did not drain the outbox")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop on cancel")
	}

	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		if store.get(id).Status != domain.OutboxProcessed {
			t.Errorf("event %s status = %q, want processed", id, store.get(id).Status)
		}
	}
}

func TestPoller_SkipsWhenLeaseHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := &fakeStore{events: []domain.OutboxEvent{
		pendingEvent("evt-1", domain.EventQuoteDecision, `{}`, time.Minute),
	}}
	dispatcher := NewDispatcher(store, map[string]HandlerFunc{
		domain.EventQuoteDecision: func(context.Context, json.RawMessage) error { return nil },
	}, testLogger(), 10)

	lease := NewLease(client, 30*time.Second)
	handle, err := lease.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquiring lease: %v", err)
	}
	defer handle.Release(context.Background())

	poller := NewPoller(dispatcher, lease, testLogger(), time.Hour, 10)

	if drained := poller.runOnce(context.Background()); !drained {
		t.Error("a held lease should make the poller idle")
	}
	if store.get("evt-1").Status != domain.OutboxPending {
		t.Error("no event should be touched while the lease is held elsewhere")
	}
}

func TestPoller_FailedLeaseReleaseIsLogged(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	// Redis dies after the lease is acquired, so the release at the end
	// of the pass fails; that must leave a trace, not vanish.
	store := &fakeStore{onClaim: func() { mr.SetError("connection reset") }}
	dispatcher := NewDispatcher(store, map[string]HandlerFunc{}, testLogger(), 10)
	lease := NewLease(client, 30*time.Second)

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	poller := NewPoller(dispatcher, lease, logger, time.Hour, 10)

	poller.runOnce(context.Background())

	if !strings.Contains(logs.String(), "failed to release dispatch lease") {
		t.Errorf("release failure not logged, got: %s", logs.String())
	}
}
