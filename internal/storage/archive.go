package storage

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
)

// ArchiveTransaction mirrors a transaction into the flat archive table.
// The upsert makes replays of the same event idempotent.
func (s *SQLiteStore) ArchiveTransaction(ctx context.Context, key core.MonthKey, txn core.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO archived_transactions
		     (id, year, month, type, amount_cents, category, description, payment_method, timestamp_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     type = excluded.type,
		     amount_cents = excluded.amount_cents,
		     category = excluded.category,
		     description = excluded.description,
		     payment_method = excluded.payment_method,
		     timestamp_ms = excluded.timestamp_ms,
		     created_at = excluded.created_at`,
		txn.ID, key.Year, key.Month, string(txn.Type), txn.Amount.Cents,
		string(txn.Category), txn.Description, string(txn.PaymentMethod),
		txn.Timestamp, txn.CreatedAt)
	if err != nil {
		return fmt.Errorf("archive transaction %s: %w", txn.ID, err)
	}

	slog.InfoContext(ctx, "Transaction archived",
		"id", txn.ID,
		"year", key.Year,
		"month", key.Month,
		"amount_cents", txn.Amount.Cents)
	return nil
}

// RemoveArchivedTransaction drops a mirrored transaction after the source
// entry was deleted.
func (s *SQLiteStore) RemoveArchivedTransaction(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM archived_transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("remove archived transaction %s: %w", id, err)
	}
	return nil
}

// CountArchivedForMonth reports how many transactions the archive holds
// for one month. Used by the worker's reconciliation sweep.
func (s *SQLiteStore) CountArchivedForMonth(ctx context.Context, key core.MonthKey) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM archived_transactions WHERE year = ? AND month = ?`,
		key.Year, key.Month).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count archived transactions for %s: %w", key, err)
	}
	return n, nil
}
