// Package binder exposes a month's ledger record reactively: it
// subscribes to the record's path and re-reads the full record whenever
// anything under it changes, fanning snapshots out to listeners.
package binder

import (
	"context"
	"log/slog"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/store"
)

// MonthReader is the read half the binder needs; satisfied by
// ledger.Service.
type MonthReader interface {
	GetMonth(ctx context.Context, key core.MonthKey) (core.LedgerRecord, error)
}

type Binder struct {
	store  store.Store
	reader MonthReader
}

func New(st store.Store, reader MonthReader) *Binder {
	return &Binder{store: st, reader: reader}
}

// Subscription delivers ledger snapshots on C. Always carries the latest
// snapshot: if the consumer lags, intermediate snapshots are dropped and
// replaced, never queued.
type Subscription struct {
	C      <-chan core.LedgerRecord
	ch     chan core.LedgerRecord
	cancel func()
	once   sync.Once
}

// Close cancels the subscription. The channel is not closed so a late
// in-flight send cannot panic; consumers stop via their context.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Bind sends the current snapshot immediately, then one snapshot per
// change to the month's record.
func (b *Binder) Bind(ctx context.Context, key core.MonthKey) (*Subscription, error) {
	initial, err := b.reader.GetMonth(ctx, key)
	if err != nil {
		return nil, err
	}

	ch := make(chan core.LedgerRecord, 1)
	ch <- initial

	unsubscribe := b.store.Subscribe(store.MonthPath(key), func() {
		rec, err := b.reader.GetMonth(ctx, key)
		if err != nil {
			slog.ErrorContext(ctx, "Binder re-read failed", "month", key.String(), "error", err)
			return
		}
		// Replace any undelivered snapshot with the newer one.
		select {
		case ch <- rec:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- rec:
			default:
			}
		}
	})

	return &Subscription{C: ch, ch: ch, cancel: unsubscribe}, nil
}
