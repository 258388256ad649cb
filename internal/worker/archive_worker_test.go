package worker

import (
	"context"
	"testing"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/store"
	"fintrack/internal/store/memory"
)

type fakeArchive struct {
	rows map[string]core.Transaction
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{rows: map[string]core.Transaction{}}
}

func (f *fakeArchive) ArchiveTransaction(ctx context.Context, key core.MonthKey, txn core.Transaction) error {
	f.rows[txn.ID] = txn
	return nil
}

func (f *fakeArchive) RemoveArchivedTransaction(ctx context.Context, id string) error {
	delete(f.rows, id)
	return nil
}

func (f *fakeArchive) CountArchivedForMonth(ctx context.Context, key core.MonthKey) (int64, error) {
	return int64(len(f.rows)), nil
}

var workerKey = core.MonthKey{Year: 2025, Month: 6}

func seedTransaction(t *testing.T, st *memory.Store, id string) core.Transaction {
	t.Helper()
	txn := core.Transaction{
		ID:            id,
		Type:          core.Expense,
		Amount:        core.Money{Cents: 5000},
		Category:      core.CategoryFood,
		Description:   "entry",
		PaymentMethod: core.MethodCash,
		Timestamp:     1,
	}
	if err := st.Write(context.Background(), store.TransactionPath(workerKey, id), txn); err != nil {
		t.Fatal(err)
	}
	return txn
}

func TestHandleEventArchivesAddedTransaction(t *testing.T) {
	st := memory.New()
	archive := newFakeArchive()
	w := NewArchiveWorker(st, archive)
	txn := seedTransaction(t, st, "1_aa")

	ev := amqp.NewLedgerEvent(amqp.EventTransactionAdded, workerKey, txn.ID)
	if err := w.HandleEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if got, ok := archive.rows[txn.ID]; !ok || got.Amount.Cents != 5000 {
		t.Fatalf("transaction not archived: %+v", archive.rows)
	}
}

func TestHandleEventToleratesAlreadyGoneTransaction(t *testing.T) {
	w := NewArchiveWorker(memory.New(), newFakeArchive())
	ev := amqp.NewLedgerEvent(amqp.EventTransactionAdded, workerKey, "missing")
	if err := w.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("missing transaction must not fail the event: %v", err)
	}
}

func TestHandleEventRemovesDeletedTransaction(t *testing.T) {
	st := memory.New()
	archive := newFakeArchive()
	w := NewArchiveWorker(st, archive)
	archive.rows["1_aa"] = core.Transaction{ID: "1_aa"}

	ev := amqp.NewLedgerEvent(amqp.EventTransactionDeleted, workerKey, "1_aa")
	if err := w.HandleEvent(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if _, ok := archive.rows["1_aa"]; ok {
		t.Fatal("archived row not removed")
	}
}

func TestHandleEventIgnoresUnknownKind(t *testing.T) {
	w := NewArchiveWorker(memory.New(), newFakeArchive())
	ev := amqp.NewLedgerEvent("transaction_exploded", workerKey, "1_aa")
	if err := w.HandleEvent(context.Background(), ev); err != nil {
		t.Fatalf("unknown kinds are dropped, not errors: %v", err)
	}
}

func TestSweepMonthUpsertsEverything(t *testing.T) {
	st := memory.New()
	archive := newFakeArchive()
	w := NewArchiveWorker(st, archive)
	seedTransaction(t, st, "1_aa")
	seedTransaction(t, st, "2_bb")
	archive.rows["1_aa"] = core.Transaction{ID: "1_aa", Amount: core.Money{Cents: 1}}

	if err := w.SweepMonth(context.Background(), workerKey); err != nil {
		t.Fatal(err)
	}
	if len(archive.rows) != 2 {
		t.Fatalf("archive holds %d rows, want 2", len(archive.rows))
	}
	// The stale copy is overwritten by the upsert.
	if archive.rows["1_aa"].Amount.Cents != 5000 {
		t.Fatalf("stale row not refreshed: %+v", archive.rows["1_aa"])
	}
}

func TestSweepMonthNoTransactions(t *testing.T) {
	w := NewArchiveWorker(memory.New(), newFakeArchive())
	if err := w.SweepMonth(context.Background(), workerKey); err != nil {
		t.Fatal(err)
	}
}
