package anchoring

import (
	"context"
	"log/slog"
	"time"

	"vitalproof/internal/platform/metrics"
)

// ConfirmationWorker polls the ledger for receipts still awaiting
// confirmation and records ConfirmedAt once.
type ConfirmationWorker struct {
	ledger   Ledger
	receipts ReceiptStore
	interval time.Duration
	batch    int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewConfirmationWorker(ledger Ledger, receipts ReceiptStore, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *ConfirmationWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfirmationWorker{
		ledger:   ledger,
		receipts: receipts,
		interval: interval,
		batch:    100,
		logger:   logger,
		metrics:  m,
	}
}

// Run polls until ctx is cancelled.
func (w *ConfirmationWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.PollOnce(ctx); err != nil {
				w.logger.WarnContext(ctx, "anchor confirmation poll failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PollOnce checks one batch and returns how many receipts were confirmed.
// A failing lookup for one receipt does not stop the batch.
func (w *ConfirmationWorker) PollOnce(ctx context.Context) (int, error) {
	pending, err := w.receipts.ListUnconfirmed(ctx, w.ledger.ID(), w.batch)
	if err != nil {
		return 0, err
	}
	confirmed := 0
	for _, r := range pending {
		c, err := w.ledger.Confirmation(ctx, r.LedgerRef)
		if err != nil {
			w.logger.WarnContext(ctx, "ledger confirmation lookup failed",
				"proof_id", r.ProofID,
				"ledger_ref", r.LedgerRef,
				"error", err,
			)
			continue
		}
		if !c.Confirmed {
			continue
		}
		flipped, err := w.receipts.MarkConfirmed(ctx, r.ProofID, c.At.UTC().Truncate(time.Microsecond))
		if err != nil {
			return confirmed, err
		}
		if flipped {
			confirmed++
			w.metrics.IncrementAnchorConfirmed()
			w.logger.InfoContext(ctx, "anchor confirmed",
				"proof_id", r.ProofID,
				"ledger_ref", r.LedgerRef,
			)
		}
	}
	return confirmed, nil
}
