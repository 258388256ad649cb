// Package worker mirrors ledger transactions into the SQLite archive,
// driven by AMQP change events with a periodic reconciliation sweep as a
// backup for lost messages.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/store"
)

// Archiver is the slice of the storage layer the worker writes to.
type Archiver interface {
	ArchiveTransaction(ctx context.Context, key core.MonthKey, txn core.Transaction) error
	RemoveArchivedTransaction(ctx context.Context, id string) error
	CountArchivedForMonth(ctx context.Context, key core.MonthKey) (int64, error)
}

type ArchiveWorker struct {
	store   store.Store
	archive Archiver
}

func NewArchiveWorker(st store.Store, archive Archiver) *ArchiveWorker {
	return &ArchiveWorker{store: st, archive: archive}
}

// HandleEvent processes one ledger event from AMQP.
func (w *ArchiveWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	key := ev.MonthKey()
	switch ev.Kind {
	case amqp.EventTransactionAdded:
		var txn core.Transaction
		found, err := w.store.Read(ctx, store.TransactionPath(key, ev.TransactionID), &txn)
		if err != nil {
			return fmt.Errorf("read transaction %s: %w", ev.TransactionID, err)
		}
		if !found {
			// Deleted before we got to it; the delete event will follow.
			slog.WarnContext(ctx, "Transaction gone before archiving",
				"id", ev.TransactionID, "month", key.String())
			return nil
		}
		return w.archive.ArchiveTransaction(ctx, key, txn)

	case amqp.EventTransactionDeleted:
		return w.archive.RemoveArchivedTransaction(ctx, ev.TransactionID)

	default:
		slog.WarnContext(ctx, "Unknown ledger event kind", "kind", ev.Kind)
		return nil
	}
}

// SweepMonth reconciles the archive with the store for one month,
// upserting every transaction currently in the record. Covers events
// lost while the worker was down.
func (w *ArchiveWorker) SweepMonth(ctx context.Context, key core.MonthKey) error {
	var txns map[string]core.Transaction
	found, err := w.store.Read(ctx, store.TransactionsPath(key), &txns)
	if err != nil {
		return fmt.Errorf("read transactions for %s: %w", key, err)
	}
	if !found || len(txns) == 0 {
		return nil
	}

	archived, err := w.archive.CountArchivedForMonth(ctx, key)
	if err != nil {
		return err
	}

	synced := 0
	for _, txn := range txns {
		if err := w.archive.ArchiveTransaction(ctx, key, txn); err != nil {
			slog.ErrorContext(ctx, "Failed to archive transaction during sweep",
				"id", txn.ID, "month", key.String(), "error", err)
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Archive sweep completed",
		"month", key.String(),
		"in_store", len(txns),
		"previously_archived", archived,
		"synced", synced)
	return nil
}
