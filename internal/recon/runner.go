package recon

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ovalline/opsdesk/internal/domain"
	"github.com/ovalline/opsdesk/internal/payments"
)

const (
	DefaultWindowDays = 14
	MaxWindowDays     = 90
)

// RunnerStore is the write surface reconciliation needs.
type RunnerStore interface {
	UpsertPaymentRecord(ctx context.Context, rec domain.PaymentRecord) (bool, error)
}

// Runner imports a trailing window of provider charges into payment
// records. Safe to run on a schedule or by hand: the upsert converges on
// one row per charge and never clobbers an appointment match it cannot
// re-derive.
type Runner struct {
	store    RunnerStore
	provider payments.Client
	matcher  *Matcher
	logger   *slog.Logger
}

func NewRunner(store RunnerStore, provider payments.Client, matcher *Matcher, logger *slog.Logger) *Runner {
	return &Runner{
		store:    store,
		provider: provider,
		matcher:  matcher,
		logger:   logger,
	}
}

// NormalizeWindow replaces an out-of-range window with the default.
func NormalizeWindow(windowDays int) int {
	if windowDays <= 0 || windowDays > MaxWindowDays {
		return DefaultWindowDays
	}
	return windowDays
}

// Reconcile fetches every charge in the trailing window, maps and
// matches each, and upserts by external charge id. A charge postgres
// rejects is logged and counted without blocking the rest of the
// window; only a provider fetch or store connectivity failure aborts
// the run.
func (r *Runner) Reconcile(ctx context.Context, windowDays int) (domain.ReconcileResult, error) {
	windowDays = NormalizeWindow(windowDays)
	result := domain.ReconcileResult{WindowDays: windowDays}

	since := time.Now().AddDate(0, 0, -windowDays)

	charges, err := r.provider.ListChargesSince(ctx, since)
	if err != nil {
		return result, err
	}
	result.Fetched = len(charges)

	for _, charge := range charges {
		if err := r.importCharge(ctx, charge); err != nil {
			if !isRowError(err) {
				return result, err
			}

			result.Failed++
			r.logger.Warn("charge import failed",
				"charge_id", charge.ID,
				"error", err,
			)
		} else {
			result.Upserted++
		}
	}

	r.logger.Info("reconciliation complete",
		"window_days", windowDays,
		"fetched", result.Fetched,
		"upserted", result.Upserted,
		"failed", result.Failed,
	)

	return result, nil
}

func (r *Runner) importCharge(ctx context.Context, charge domain.ProviderCharge) error {
	rec := MapCharge(charge)

	matched, err := r.matcher.ResolveAppointmentID(ctx, charge)
	if err != nil {
		return err
	}
	rec.AppointmentID = matched

	_, err = r.store.UpsertPaymentRecord(ctx, rec)
	return err
}

// isRowError separates errors the database reported about one charge's
// data, which the run survives, from connectivity-class failures where
// no further charge can be trusted to land.
func isRowError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
