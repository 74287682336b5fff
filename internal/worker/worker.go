package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"financas/internal/amqp"
	"financas/internal/core"
	"financas/internal/storage"
)

// StatementExporter appends one settled payment to the external statement.
// Satisfied by the Google Sheets client.
type StatementExporter interface {
	AppendPayment(ctx context.Context, p core.InvoicePayment, cardName string) error
}

// Worker consumes domain events into the append-only event log and drains
// settled invoice payments to the statement export. Export is best-effort:
// payments stay flagged as unexported until a drain succeeds, so a sheets
// outage never loses a row.
type Worker struct {
	repo      *storage.Repository
	exporter  StatementExporter
	batchSize int
	interval  time.Duration
}

func NewWorker(repo *storage.Repository, exporter StatementExporter, batchSize int, interval time.Duration) *Worker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Worker{
		repo:      repo,
		exporter:  exporter,
		batchSize: batchSize,
		interval:  interval,
	}
}

// HandleEvent records one event in the audit log. Paid invoices additionally
// trigger an immediate export drain.
func (w *Worker) HandleEvent(ctx context.Context, ev *amqp.Event) error {
	err := w.repo.InsertEvent(ctx, w.repo.DB(), ev.Kind, ev.UserID, ev.RefID,
		ev.AmountCents, ev.Mes, ev.Ano)
	if err != nil {
		return fmt.Errorf("record event %s: %w", ev.Kind, err)
	}

	if ev.Kind == amqp.EventInvoicePaid {
		if err := w.ExportPending(ctx); err != nil {
			// The periodic drain retries; the event itself is recorded.
			slog.ErrorContext(ctx, "Export after invoice payment failed", "error", err)
		}
	}
	return nil
}

// Run drains pending exports on a fixed interval until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Statement export loop started",
		"interval", w.interval, "batch_size", w.batchSize)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Statement export loop stopped", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.ExportPending(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed", "error", err)
			}
		}
	}
}

// ExportPending pushes up to one batch of unexported payments to the
// statement and marks the successful ones.
func (w *Worker) ExportPending(ctx context.Context) error {
	if w.exporter == nil {
		return nil
	}

	pending, err := w.repo.ListUnexportedPayments(ctx, w.repo.DB(), w.batchSize)
	if err != nil {
		return fmt.Errorf("list unexported payments: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	exported := 0
	for _, p := range pending {
		cardName := fmt.Sprintf("card %d", p.CardID)
		card, err := w.repo.GetCard(ctx, w.repo.DB(), p.CardID, p.UserID)
		if err == nil {
			cardName = card.Name
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("load card for payment %d: %w", p.ID, err)
		}

		if err := w.exporter.AppendPayment(ctx, p, cardName); err != nil {
			// Stop the batch; the remaining rows stay pending.
			return fmt.Errorf("export payment %d: %w", p.ID, err)
		}
		if err := w.repo.MarkPaymentExported(ctx, w.repo.DB(), p.ID); err != nil {
			return fmt.Errorf("mark payment %d exported: %w", p.ID, err)
		}
		exported++
	}

	slog.InfoContext(ctx, "Exported settled payments", "count", exported)
	return nil
}
