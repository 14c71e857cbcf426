package worker

import (
	"context"
	"log/slog"
	"time"

	"verified-checkout/internal/domain"
	"verified-checkout/internal/repo"
	"verified-checkout/internal/service"
)

// ReconciliationWorker re-verifies payments that stayed pending past a
// threshold, covering notifications the gateway never delivered.
type ReconciliationWorker struct {
	paymentRepo repo.PaymentRepo
	reconciler  service.ReconcileService
	interval    time.Duration
	olderThan   time.Duration
	batchSize   int
	logger      *slog.Logger
	now         func() time.Time
}

func NewReconciliationWorker(
	paymentRepo repo.PaymentRepo,
	reconciler service.ReconcileService,
	interval time.Duration,
	olderThan time.Duration,
	batchSize int,
	logger *slog.Logger,
) *ReconciliationWorker {
	return &ReconciliationWorker{
		paymentRepo: paymentRepo,
		reconciler:  reconciler,
		interval:    interval,
		olderThan:   olderThan,
		batchSize:   batchSize,
		logger:      logger,
		now:         time.Now,
	}
}

// SweepStats summarises one pass.
type SweepStats struct {
	Scanned    int
	Applied    int
	InProgress int
	Failed     int
}

func (rw *ReconciliationWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	rw.logger.Info("reconciliation worker started", "interval", rw.interval, "older_than", rw.olderThan)

	for {
		select {
		case <-ctx.Done():
			rw.logger.Info("reconciliation worker stopped")
			return
		case <-ticker.C:
			if _, err := rw.Sweep(ctx); err != nil {
				rw.logger.Error("reconciliation sweep failed", "error", err)
			}
		}
	}
}

// Sweep runs a single pass. Per-record failures are logged and skipped so
// the next tick can retry them.
func (rw *ReconciliationWorker) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	stuck, err := rw.paymentRepo.FindPendingBefore(ctx, rw.now().Add(-rw.olderThan), rw.batchSize)
	if err != nil {
		return stats, err
	}
	if len(stuck) == 0 {
		return stats, nil
	}

	rw.logger.Info("found stale pending payments", "count", len(stuck))

	for _, p := range stuck {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Scanned++

		res, err := rw.reconciler.ReconcileTxRef(ctx, p.TxRef)
		if err != nil {
			stats.Failed++
			level := slog.LevelError
			if domain.IsGateway(err) {
				level = slog.LevelWarn
			}
			rw.logger.Log(ctx, level, "reconcile stale payment failed", "tx_ref", p.TxRef, "user_id", p.UserID, "error", err)
			continue
		}
		switch {
		case res.InProgress:
			stats.InProgress++
		case res.Applied:
			stats.Applied++
		}
	}

	rw.logger.Info("reconciliation sweep done",
		"scanned", stats.Scanned,
		"applied", stats.Applied,
		"in_progress", stats.InProgress,
		"failed", stats.Failed,
	)
	return stats, nil
}
