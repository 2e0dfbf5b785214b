package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Poller runs dispatch batches continuously. A non-empty batch is
// followed immediately by another pass; the idle sleep only happens when
// the outbox drained.
type Poller struct {
	dispatcher *Dispatcher
	lease      *Lease
	logger     *slog.Logger
	interval   time.Duration
	limit      int
}

func NewPoller(dispatcher *Dispatcher, lease *Lease, logger *slog.Logger, interval time.Duration, limit int) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		dispatcher: dispatcher,
		lease:      lease,
		logger:     logger,
		interval:   interval,
		limit:      ClampLimit(limit),
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Info("outbox poller started", "interval", p.interval, "limit", p.limit)

	for {
		drained := p.runOnce(ctx)

		if !drained {
			continue
		}

		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopping")
			return
		case <-time.After(p.interval):
		}
	}
}

// runOnce performs one leased dispatch pass. It reports true when the
// poller should idle: an empty batch, a held lease, or an error.
func (p *Poller) runOnce(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}

	handle, err := p.lease.Acquire(ctx)
	if err == ErrLeaseHeld {
		return true
	}
	if err != nil {
		p.logger.Error("failed to acquire dispatch lease", "error", err)
		return true
	}
	defer func() {
		// Release even when the poll context was cancelled mid-batch.
		if err := handle.Release(context.WithoutCancel(ctx)); err != nil {
			p.logger.Warn("failed to release dispatch lease", "error", err)
		}
	}()

	stats, err := p.dispatcher.DispatchBatch(ctx, p.limit)
	if err != nil {
		p.logger.Error("dispatch batch failed", "error", err)
		return true
	}

	if stats.Total > 0 {
		p.logger.Info("dispatch batch complete",
			"total", stats.Total,
			"succeeded", stats.Succeeded,
			"failed", stats.Failed,
		)
	}

	return stats.Total == 0
}
