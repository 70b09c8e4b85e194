// Package worker bridges the event queue to the external ledger.
package worker

import (
	"context"
	"fmt"

	"grana/internal/amqp"
	applog "grana/internal/log"
	"grana/internal/sheets"
	"grana/internal/store"
)

// ExportWorker appends created transactions to the configured ledger.
// Other event kinds are acknowledged and ignored.
type ExportWorker struct {
	ledger sheets.LedgerAppender
	logger *applog.Logger
}

func NewExportWorker(ledger sheets.LedgerAppender) *ExportWorker {
	return &ExportWorker{
		ledger: ledger,
		logger: applog.New(applog.Config{Component: applog.ComponentWorker}),
	}
}

// HandleEvent processes one queued store event. Returning an error nacks
// the delivery for redelivery.
func (w *ExportWorker) HandleEvent(ctx context.Context, msg *amqp.EventMessage) error {
	if msg.Kind != string(store.EventTransactionAdded) {
		w.logger.InfoContext(ctx, "Skipping non-transaction event", "kind", msg.Kind)
		return nil
	}
	if msg.Transaction == nil {
		w.logger.WarnContext(ctx, "Transaction event without payload, dropping")
		return nil
	}
	if w.ledger == nil {
		w.logger.WarnContext(ctx, "No ledger configured, skipping export",
			"id", msg.Transaction.ID)
		return nil
	}

	ref, err := w.ledger.AppendTransaction(ctx, *msg.Transaction)
	if err != nil {
		return fmt.Errorf("export transaction %s: %w", msg.Transaction.ID, err)
	}

	w.logger.InfoContext(ctx, "Transaction exported",
		"id", msg.Transaction.ID, "ref", ref)
	return nil
}
